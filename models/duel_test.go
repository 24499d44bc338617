package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuelMatch_MoveStake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		from       int64
		pool1      int64
		pool2      int64
		wantMoved  int64
		wantPool1  int64
		wantPool2  int64
		wantScore1 int
		wantScore2 int
	}{
		{name: "full stake from player1", from: 1, pool1: 100, pool2: 100, wantMoved: 10, wantPool1: 90, wantPool2: 110, wantScore2: 1},
		{name: "full stake from player2", from: 2, pool1: 100, pool2: 100, wantMoved: 10, wantPool1: 110, wantPool2: 90, wantScore1: 1},
		{name: "capped by remaining pool", from: 1, pool1: 4, pool2: 100, wantMoved: 4, wantPool1: 0, wantPool2: 104, wantScore2: 1},
		{name: "empty pool moves nothing", from: 2, pool1: 50, pool2: 0, wantMoved: 0, wantPool1: 50, wantPool2: 0, wantScore1: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &DuelMatch{Player1ID: 1, Player2ID: 2, StakePerRound: 10, Pool1: tt.pool1, Pool2: tt.pool2}

			moved := m.MoveStake(tt.from)

			assert.Equal(t, tt.wantMoved, moved)
			assert.Equal(t, tt.wantPool1, m.Pool1)
			assert.Equal(t, tt.wantPool2, m.Pool2)
			assert.Equal(t, tt.wantScore1, m.Score1)
			assert.Equal(t, tt.wantScore2, m.Score2)
			assert.Equal(t, tt.pool1+tt.pool2, m.Pool1+m.Pool2, "pools are conserved")
		})
	}
}

func TestDuelMatch_Mover(t *testing.T) {
	t.Parallel()

	picker := int64(1)
	m := &DuelMatch{Player1ID: 1, Player2ID: 2, State: DuelStateChallenged}
	assert.Equal(t, int64(2), m.Mover())

	m.State = DuelStatePicking
	m.PickerID = &picker
	assert.Equal(t, int64(1), m.Mover())

	m.State = DuelStateGuessing
	assert.Equal(t, int64(2), m.Mover())
	assert.Equal(t, int64(2), m.Guesser())

	m.State = DuelStateFinished
	assert.Equal(t, int64(0), m.Mover())
}

func TestDuelMatch_Acknowledge(t *testing.T) {
	t.Parallel()

	m := &DuelMatch{Player1ID: 1, Player2ID: 2}
	m.Acknowledge(1)
	assert.False(t, m.BothAcknowledged())
	m.Acknowledge(1)
	assert.False(t, m.BothAcknowledged())
	m.Acknowledge(2)
	assert.True(t, m.BothAcknowledged())
}
