package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMembershipTracker_JoinLeave(t *testing.T) {
	req := require.New(t)
	tracker := NewMembershipTracker()

	tracker.Join("c1", 10)
	tracker.Join("c1", 10) // idempotent
	tracker.Join("c2", 10)
	tracker.Join("c1", 20)

	req.ElementsMatch([]string{"c1", "c2"}, tracker.MembersOf(10))
	req.ElementsMatch([]int64{10, 20}, tracker.RoomsOf("c1"))
	req.ElementsMatch([]int64{10}, tracker.RoomsOf("c2"))

	tracker.Leave("c1", 10)
	req.ElementsMatch([]string{"c2"}, tracker.MembersOf(10))
	req.ElementsMatch([]int64{20}, tracker.RoomsOf("c1"))

	// Unknown pairs are a no-op.
	tracker.Leave("c9", 10)
	tracker.Leave("c1", 99)
	req.ElementsMatch([]string{"c2"}, tracker.MembersOf(10))
}

func TestMembershipTracker_LeaveAll(t *testing.T) {
	req := require.New(t)
	tracker := NewMembershipTracker()

	tracker.Join("c1", 10)
	tracker.Join("c1", 20)
	tracker.Join("c2", 20)

	tracker.LeaveAll("c1")

	req.Empty(tracker.RoomsOf("c1"))
	req.Empty(tracker.MembersOf(10))
	req.ElementsMatch([]string{"c2"}, tracker.MembersOf(20))

	// LeaveAll for an unknown connection is a no-op.
	tracker.LeaveAll("c9")
	req.ElementsMatch([]string{"c2"}, tracker.MembersOf(20))
}
