package simnet

import (
	"reflect"
	"testing"
	"time"
)

func TestLinkState_String(t *testing.T) {
	tests := []struct {
		name  string
		state LinkState
		want  string
	}{
		{
			name:  "valid",
			state: LinkState{at: 10 * time.Second, status: UP, fromNode: 0, toNode: 1},
			want:  "10s UP 0 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLink_isUp(t *testing.T) {
	tests := []struct {
		name   string
		states []LinkState
		at     time.Duration
		want   bool
	}{
		{
			name:   "no states",
			states: []LinkState{},
			at:     0,
			want:   false,
		},
		{
			name: "is up inclusive",
			states: []LinkState{
				{at: time.Second, status: UP, fromNode: 0, toNode: 1},
			},
			at:   time.Second,
			want: true,
		},
		{
			name: "up then down",
			states: []LinkState{
				{at: time.Second, status: UP, fromNode: 0, toNode: 1},
				{at: 3 * time.Second, status: DOWN, fromNode: 0, toNode: 1},
			},
			at:   4 * time.Second,
			want: false,
		},
		{
			name: "down then up",
			states: []LinkState{
				{at: time.Second, status: DOWN, fromNode: 0, toNode: 1},
				{at: 3 * time.Second, status: UP, fromNode: 0, toNode: 1},
			},
			at:   4 * time.Second,
			want: true,
		},
		{
			name: "between states",
			states: []LinkState{
				{at: time.Second, status: DOWN, fromNode: 0, toNode: 1},
				{at: 3 * time.Second, status: UP, fromNode: 0, toNode: 1},
			},
			at:   2 * time.Second,
			want: false,
		},
		{
			name: "sub-second instant between whole-second transitions",
			states: []LinkState{
				{at: time.Second, status: UP, fromNode: 0, toNode: 1},
				{at: 3 * time.Second, status: DOWN, fromNode: 0, toNode: 1},
			},
			at:   2500 * time.Millisecond,
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Link{fromNode: 0, toNode: 1, states: tt.states}
			if got := l.isUp(tt.at); got != tt.want {
				t.Errorf("isUp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_parseLinkState(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		want    *LinkState
		wantErr bool
	}{
		{
			name:  "valid",
			state: "10 UP 0 1",
			want:  &LinkState{at: 10 * time.Second, status: UP, fromNode: 0, toNode: 1},
		},
		{
			name:    "invalid syntax",
			state:   "10UP 0 1",
			wantErr: true,
		},
		{
			name:    "invalid time",
			state:   "x UP 0 1",
			wantErr: true,
		},
		{
			name:    "no negative time",
			state:   "-1 UP 0 1",
			wantErr: true,
		},
		{
			name:    "invalid status",
			state:   "1 x 0 1",
			wantErr: true,
		},
		{
			name:    "invalid id",
			state:   "1 UP X 1",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLinkState(tt.state)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseLinkState() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseLinkState() got = %v, want %v", got, tt.want)
			}
		})
	}
}
