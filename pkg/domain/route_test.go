package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute_Status(t *testing.T) {
	exec := func(s ExecutionStatus) *Execution { return &Execution{Status: s} }

	tests := []struct {
		name  string
		steps []*Step
		want  ExecutionStatus
	}{
		{"not started", []*Step{{ID: "a"}, {ID: "b"}}, ExecutionPending},
		{"all done", []*Step{{ID: "a", Execution: exec(ExecutionDone)}, {ID: "b", Execution: exec(ExecutionDone)}}, ExecutionDone},
		{"partially done", []*Step{{ID: "a", Execution: exec(ExecutionDone)}, {ID: "b"}}, ExecutionPending},
		{"failed wins", []*Step{{ID: "a", Execution: exec(ExecutionDone)}, {ID: "b", Execution: exec(ExecutionFailed)}}, ExecutionFailed},
		{"action required", []*Step{{ID: "a", Execution: exec(ExecutionActionRequired)}}, ExecutionActionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Route{Steps: tt.steps}
			assert.Equal(t, tt.want, r.Status())
		})
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	v, err = ParseAmount("0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())

	v, err = ParseAmount("")
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = ParseAmount("-1")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestChain_TxLink(t *testing.T) {
	c := &Chain{ExplorerURLs: []string{"https://etherscan.io"}}
	assert.Equal(t, "https://etherscan.io/tx/0x1", c.TxLink("0x1"))

	c.ExplorerURLs = []string{"https://arbiscan.io/"}
	assert.Equal(t, "https://arbiscan.io/tx/0x2", c.TxLink("0x2"))

	assert.Empty(t, (&Chain{}).TxLink("0x3"))
}

func TestToken_IsNative(t *testing.T) {
	assert.True(t, Token{}.IsNative())
	assert.False(t, Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")}.IsNative())
}

func TestProcessUpdate_Apply(t *testing.T) {
	p := &Process{Type: ProcessSwap, Status: ProcessPending, TxHash: "0xold", Message: "m"}
	ProcessUpdate{TxHash: "0xnew", Substatus: SubstatusPartial}.Apply(p)

	assert.Equal(t, "0xnew", p.TxHash)
	assert.Equal(t, SubstatusPartial, p.Substatus)
	assert.Equal(t, "m", p.Message, "zero fields leave values unchanged")
}

func TestExecutionError(t *testing.T) {
	cause := assert.AnError
	err := NewExecutionError(CodeTransactionFailed, "boom", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeTransactionFailed, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
	assert.Equal(t, &ProcessError{Code: CodeTransactionFailed, Message: "boom"}, err.ProcessError())
}
