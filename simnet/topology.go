package simnet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NodeID is the small-integer node label used by the link-state script
// format (single digit, per the `^\d$` grammar below). Network maps each
// NodeID to the netip.Addr its olsr.Engine actually runs as.
type NodeID int

// LinkStatus represents whether a link is available or not.
type LinkStatus string

const (
	// UP represents a link that is available.
	UP LinkStatus = "UP"

	// DOWN represents a link that is unavailable.
	DOWN LinkStatus = "DOWN"
)

// LinkState represents a link's state as of a given instant in the
// network's simulated time. Scripts express instants as whole seconds, but
// the oracle itself works in time.Duration throughout so it composes
// directly with VirtualClock and the VTime-scale durations (§4.2) engines
// schedule against, rather than converting between a raw tick count and
// wall time at every query.
type LinkState struct {
	// at is the instant, inclusive, this state becomes valid, measured
	// from the Network's epoch.
	at time.Duration

	// status is the status of the link.
	status LinkStatus

	// fromNode is the source Node id.
	fromNode NodeID

	// toNode is the destination Node id.
	toNode NodeID
}

func (l *LinkState) String() string {
	return fmt.Sprintf("%s %s %d %d", l.at, l.status, l.fromNode, l.toNode)
}

// ErrParseLinkState reports a malformed line in a link-state script.
type ErrParseLinkState struct {
	msg string
}

func (e ErrParseLinkState) Error() string {
	return fmt.Sprintf("parse link state: %s", e.msg)
}

func parseLinkState(line string) (*LinkState, error) {
	ls := &LinkState{}

	fields := strings.Split(line, " ")
	if len(fields) != 4 {
		return nil, ErrParseLinkState{msg: "must be of the form: '{SECONDS} {UP | DOWN} {LABEL} {LABEL}'"}
	}

	seconds, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, ErrParseLinkState{msg: fmt.Sprintf("time is not an integer: '%s'", fields[0])}
	}
	if seconds < 0 {
		return nil, ErrParseLinkState{msg: fmt.Sprintf("time must not be negative: '%s'", fields[0])}
	}
	ls.at = time.Duration(seconds) * time.Second

	switch LinkStatus(fields[1]) {
	case UP:
		ls.status = UP
	case DOWN:
		ls.status = DOWN
	default:
		return nil, ErrParseLinkState{msg: fmt.Sprintf("invalid status: '%s': must be {UP | DOWN}", fields[1])}
	}

	lre := regexp.MustCompile(`^\d$`)
	if !lre.MatchString(fields[2]) {
		return nil, ErrParseLinkState{msg: fmt.Sprintf("invalid id: '%s': must be '^[0-9]$'", fields[2])}
	}
	if !lre.MatchString(fields[3]) {
		return nil, ErrParseLinkState{msg: fmt.Sprintf("invalid id: '%s': must be '^[0-9]$'", fields[3])}
	}

	rawLabel, _ := strconv.Atoi(fields[2])
	ls.fromNode = NodeID(rawLabel)

	rawLabel, _ = strconv.Atoi(fields[3])
	ls.toNode = NodeID(rawLabel)

	return ls, nil
}

// Link is one directed edge's full up/down schedule.
type Link struct {
	fromNode NodeID
	toNode   NodeID
	states   []LinkState
}

// isUp determines whether the link is available at the given instant.
func (l *Link) isUp(at time.Duration) bool {
	up := false
	for _, state := range l.states {
		if at < state.at {
			continue
		}
		up = state.status == UP
	}
	return up
}

// QueryMsg asks the Topology to determine the state of a link at a given
// instant of simulated network time, measured from the Network's epoch.
type QueryMsg struct {
	fromNode NodeID
	toNode   NodeID
	at       time.Duration
}

// Topology is the link-state oracle a Network consults before delivering a
// broadcast from one node to another. It generalizes the teacher's
// NetworkTypology from a raw integer tick count to the time.Duration
// vocabulary the rest of this module schedules against (HelloInterval,
// VTime, DUP_HOLD), so a Network can query it with the same clock reading
// its VirtualClock hands to every Engine, with no separate tick conversion
// layer.
type Topology struct {
	links map[NodeID]map[NodeID]Link
}

// NewTopology parses a link-state script: one "{SECONDS} {UP|DOWN} {FROM}
// {TO}" line per state transition, sorted by non-decreasing time.
func NewTopology(in io.ReadCloser) (*Topology, error) {
	defer func(in io.ReadCloser) {
		if err := in.Close(); err != nil {
			log.Printf("unable to close input file: %s\n", err)
		}
	}(in)

	n := &Topology{links: make(map[NodeID]map[NodeID]Link)}

	r := bufio.NewReader(in)
	var prev time.Duration
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}

		ls, err := parseLinkState(line)
		if err != nil {
			return nil, err
		}

		if ls.at < prev {
			return nil, errors.New("entries in input must be sorted by increasing time")
		}
		prev = ls.at

		dsts, ok := n.links[ls.fromNode]
		if !ok {
			link := Link{fromNode: ls.fromNode, toNode: ls.toNode}
			link.states = append(link.states, *ls)

			srcMap := make(map[NodeID]Link)
			srcMap[ls.toNode] = link
			n.links[ls.fromNode] = srcMap
			continue
		}
		dst, ok := dsts[ls.toNode]
		if !ok {
			link := Link{fromNode: ls.fromNode, toNode: ls.toNode}
			link.states = append(link.states, *ls)

			dsts[ls.toNode] = link
			continue
		}

		dst.states = append(dst.states, *ls)
		dsts[ls.toNode] = dst
	}

	return n, nil
}

// Query determines whether a link is up at the given instant.
func (n *Topology) Query(msg QueryMsg) bool {
	links, in := n.links[msg.fromNode]
	if !in {
		return false
	}
	link, in := links[msg.toNode]
	if !in {
		return false
	}
	return link.isUp(msg.at)
}
