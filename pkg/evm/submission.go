package evm

// PathKind is the submission route taken by one step invocation.
type PathKind string

const (
	PathBatch        PathKind = "batch"
	PathPermitSigned PathKind = "permit"
	PathPlain        PathKind = "plain"
)

// PermitKind distinguishes the signature flavours of PathPermitSigned.
type PermitKind string

const (
	PermitNative  PermitKind = "native"
	PermitPermit2 PermitKind = "permit2"
	PermitRelayed PermitKind = "relayed"
)

// SubmissionPath is the single way a step's transaction reaches the chain.
// Permit is only set when Kind is PathPermitSigned.
type SubmissionPath struct {
	Kind   PathKind
	Permit PermitKind
}

func (p SubmissionPath) String() string {
	if p.Kind == PathPermitSigned {
		return string(p.Kind) + ":" + string(p.Permit)
	}
	return string(p.Kind)
}

// PathInputs are the capability and flag evaluations a path is chosen from.
type PathInputs struct {
	AtomicBatch  bool
	RelayerStep  bool
	NativePermit bool
	Permit2      bool
}

// SelectPath picks the submission path. Relayer steps always sign; atomic
// batching wins over any other permit; a native permit beats Permit2.
func SelectPath(in PathInputs) SubmissionPath {
	switch {
	case in.RelayerStep:
		return SubmissionPath{Kind: PathPermitSigned, Permit: PermitRelayed}
	case in.AtomicBatch:
		return SubmissionPath{Kind: PathBatch}
	case in.NativePermit:
		return SubmissionPath{Kind: PathPermitSigned, Permit: PermitNative}
	case in.Permit2:
		return SubmissionPath{Kind: PathPermitSigned, Permit: PermitPermit2}
	default:
		return SubmissionPath{Kind: PathPlain}
	}
}
