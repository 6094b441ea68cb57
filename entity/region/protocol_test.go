package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 路口5的首选前驱为1，次选前驱为2；路口2与3互为相邻
func predecessorNetwork(t *testing.T) *Negotiator {
	_, net := bareNetwork(t, map[int32][]int32{
		1: {5},
		2: {3, 5},
		3: {2},
		5: {1, 2},
	})
	n5 := mustNode(t, net, 5)
	n5.synchronisedStream = &TrafficStream{Origin: 1, Target: 5, Strength: 50}
	n5.secondaryStream = &TrafficStream{Origin: 2, Target: 5, Strength: 30}
	n5.predecessor = 1
	return net
}

func TestPreliminaryRejectFallsBackToSecondPredecessor(t *testing.T) {
	cases := []struct {
		name        string
		prepare     func(net *Negotiator)
		wantQueried bool
		wantSuccs   []int32
	}{
		{
			name:        "registers at second choice",
			prepare:     func(*Negotiator) {},
			wantQueried: true,
			wantSuccs:   []int32{5},
		},
		{
			name: "second choice closes a loop",
			prepare: func(net *Negotiator) {
				mustNode(t, net, 2).predecessor = 3
				mustNode(t, net, 3).predecessor = 2
			},
			wantQueried: false,
			wantSuccs:   []int32{},
		},
		{
			name: "second choice equals first choice",
			prepare: func(net *Negotiator) {
				mustNode(t, net, 5).secondaryStream.Origin = 1
			},
			wantQueried: false,
			wantSuccs:   []int32{},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			net := predecessorNetwork(t)
			c.prepare(net)
			n5 := mustNode(t, net, 5)

			n5.receive(message{kind: msgNotify, from: 1, to: 5, answer: false, preliminary: true})
			net.drain()

			assert.Equal(t, int32(0), n5.Predecessor())
			assert.True(t, n5.primStreamPreliminaryNo)
			assert.False(t, n5.confirmedPredecessor)
			assert.Equal(t, c.wantQueried, n5.queriedSecondPred)
			assert.Equal(t, c.wantSuccs, mustNode(t, net, 2).SuccessorList())
			assert.Equal(t, int32(-1), n5.determineCurrentPredecessorID())
		})
	}
}

func TestSecondPredecessorAccepts(t *testing.T) {
	net := predecessorNetwork(t)
	n5 := mustNode(t, net, 5)
	n5.receive(message{kind: msgNotify, from: 1, to: 5, answer: false, preliminary: true})
	net.drain()

	n5.receive(message{kind: msgNotify, from: 2, to: 5, answer: true, preliminary: true})
	assert.Equal(t, int32(2), n5.Predecessor())
	assert.True(t, n5.predecessorIsSecondChoice)
	assert.False(t, n5.confirmedPredecessor)

	n5.receive(message{kind: msgNotify, from: 2, to: 5, answer: true, preliminary: false})
	assert.True(t, n5.confirmedPredecessor)

	// 已确认前驱后，首选前驱的最终接受被拒绝并回复refused
	mustNode(t, net, 1).primarySuccessor = 5
	n5.receive(message{kind: msgNotify, from: 1, to: 5, answer: true, preliminary: false})
	net.drain()
	assert.Equal(t, int32(2), n5.Predecessor())
	assert.Equal(t, int32(0), mustNode(t, net, 1).PrimarySuccessor())
}

func TestFinalisePSSMechanism(t *testing.T) {
	cases := []struct {
		name                         string
		pred, succ                   int32
		wantPred                     int32
		wantPart, wantBegin, wantEnd bool
		wantPredSuccs                []int32
	}{
		{"predecessor equals successor", 2, 2, 0, true, true, false, []int32{}},
		{"distinct partners", 1, 2, 1, true, false, false, []int32{5}},
		{"end of corridor", 2, 0, 2, true, false, true, []int32{5}},
		{"isolated", 0, 0, 0, false, false, false, []int32{5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			net := predecessorNetwork(t)
			n2 := mustNode(t, net, 2)
			n2.registerSuccessor(5)
			n2.primarySuccessor = 5
			n5 := mustNode(t, net, 5)
			n5.predecessor = c.pred
			n5.primarySuccessor = c.succ

			n5.RunSynchronisation(5)
			net.drain()

			assert.Equal(t, c.wantPred, n5.Predecessor())
			assert.Equal(t, c.wantPart, n5.PartOfPSS())
			assert.Equal(t, c.wantBegin, n5.BeginOfPSS())
			assert.Equal(t, c.wantEnd, n5.EndOfPSS())
			assert.Equal(t, c.wantPredSuccs, n2.SuccessorList())
			if len(c.wantPredSuccs) == 0 {
				assert.Equal(t, int32(0), n2.PrimarySuccessor())
			}
		})
	}
}

func TestRefusedClearsPrimarySuccessor(t *testing.T) {
	cases := []struct {
		name     string
		primary  int32
		from     int32
		wantPrim int32
	}{
		{"refused by primary successor", 5, 5, 0},
		{"refused by other node", 5, 2, 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			net := predecessorNetwork(t)
			n1 := mustNode(t, net, 1)
			n1.primarySuccessor = c.primary
			n1.receive(message{kind: msgRefused, from: c.from, to: 1})
			assert.Equal(t, c.wantPrim, n1.PrimarySuccessor())
		})
	}
}

func TestFinalAcceptAfterConfirmationIsRefused(t *testing.T) {
	net := predecessorNetwork(t)
	n5 := mustNode(t, net, 5)
	n5.predecessor = 2
	n5.confirmedPredecessor = true
	n1 := mustNode(t, net, 1)
	n1.primarySuccessor = 5

	n5.receive(message{kind: msgNotify, from: 1, to: 5, answer: true, preliminary: false})
	net.drain()

	assert.Equal(t, int32(2), n5.Predecessor())
	assert.Equal(t, int32(0), n1.PrimarySuccessor())

	// 试探性答复与拒绝不会触发refused
	n1.primarySuccessor = 5
	n5.receive(message{kind: msgNotify, from: 1, to: 5, answer: true, preliminary: true})
	net.drain()
	assert.Equal(t, int32(5), n1.PrimarySuccessor())
}

func TestUnsubscribeFromUnknownSuccessor(t *testing.T) {
	net := predecessorNetwork(t)
	n2 := mustNode(t, net, 2)
	n2.registerSuccessor(5)
	n2.registerSuccessor(3)
	n2.registerSuccessor(5)
	n2.primarySuccessor = 3

	n2.receive(message{kind: msgUnsubscribe, from: 5, to: 2})
	assert.Equal(t, []int32{3}, n2.SuccessorList())
	assert.Equal(t, int32(3), n2.PrimarySuccessor())
}
