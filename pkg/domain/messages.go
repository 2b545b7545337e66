package domain

var processMessages = map[ProcessType]map[ProcessStatus]string{
	ProcessTokenAllowance: {
		ProcessStarted: "Setting token allowance.",
		ProcessPending: "Waiting for token allowance.",
		ProcessDone:    "Token allowance set.",
	},
	ProcessSwitchChain: {
		ProcessPending: "Chain switch required.",
		ProcessDone:    "Chain switched successfully.",
	},
	ProcessPermit: {
		ProcessStarted:        "Preparing transaction.",
		ProcessActionRequired: "Please sign the permit message.",
		ProcessPending:        "Waiting for permit message.",
		ProcessDone:           "Permit message signed.",
	},
	ProcessSwap: {
		ProcessStarted:        "Preparing swap transaction.",
		ProcessActionRequired: "Please sign the transaction.",
		ProcessPending:        "Waiting for swap transaction.",
		ProcessDone:           "Swap completed.",
	},
	ProcessCrossChain: {
		ProcessStarted:        "Preparing bridge transaction.",
		ProcessActionRequired: "Please sign the transaction.",
		ProcessPending:        "Waiting for bridge transaction.",
		ProcessDone:           "Bridge transaction confirmed.",
	},
	ProcessReceivingChain: {
		ProcessPending: "Waiting for destination chain.",
		ProcessDone:    "Bridge completed.",
	},
	ProcessTransaction: {},
}

var substatusMessages = map[Substatus]string{
	SubstatusWaitSourceConfirmations:    "The bridge is waiting for additional confirmations.",
	SubstatusWaitDestinationTransaction: "The bridge off-chain logic is being executed. Wait for the transaction to appear on the destination chain.",
	SubstatusBridgeNotAvailable:         "The bridge is currently unavailable. Please try again later.",
	SubstatusChainNotAvailable:          "The RPC for the source/destination chain is temporarily unavailable.",
	SubstatusRefundInProgress:           "The refund has been requested and it's being processed.",
	SubstatusUnknownError:               "We cannot determine the status of the transfer.",
	SubstatusCompleted:                  "The transfer is complete.",
	SubstatusPartial:                    "The transfer was partially successful. This can happen for specific bridges like across, multichain or connext which may provide alternative tokens in case of low liquidity.",
	SubstatusRefunded:                   "The transfer was not successful, and it has been refunded.",
}

// ProcessMessage returns the human-readable message for a process type and status.
func ProcessMessage(t ProcessType, s ProcessStatus) string {
	return processMessages[t][s]
}

// SubstatusMessage returns the human-readable message for a bridge substatus.
func SubstatusMessage(s Substatus) string {
	return substatusMessages[s]
}
