package syscall

// Per-syscall gas charges, added on top of vm.CostECALL's base ECALL
// dispatch charge (spec §4.4 step 1: "Checks gas for the syscall's charge;
// trap OUT_OF_GAS if insufficient"). Mirrors the teacher's CU* cost
// constants (pkg/svm/syscall/syscall.go's CUSyscallBase/CULogBase/... and
// pkg/svm/compute.go's CU table), scaled down to this engine's gas units.
const (
	costBase       = int64(1)
	costStorage    = int64(20) // GET_STORAGE/SET_STORAGE flat charge; the
	                           // SET_STORAGE charge does not depend on the
	                           // StorageStatus the host returns, and no
	                           // further charge is applied by the host.
	costBalance    = int64(5)
	costCallBase   = int64(10)
	costSpawn      = int64(15)
	costDeploy     = int64(15)
	costContext    = int64(3)
	costBlockHash  = int64(5)
	costPrecompile = int64(25) // ed25519 verify, matching the teacher's
	                           // CUSha256Base-style "crypto syscalls cost more"
	                           // convention.
	costHint       = int64(1)
)

// CostOf returns the gas charge for a syscall number, looked up before the
// handler runs (spec §4.4 step 1).
func CostOf(num uint32) int64 {
	switch num {
	case Halt, WRITE, READ:
		return costBase
	case GetStorage, SetStorage:
		return costStorage
	case GetBalance:
		return costBalance
	case Call:
		return costCallBase
	case Spawn:
		return costSpawn
	case Deploy:
		return costDeploy
	case GetContext:
		return costContext
	case GetBlockHash:
		return costBlockHash
	case PrecompileEd25519Verify:
		return costPrecompile
	case HintLen, HintRead:
		return costHint
	default:
		return costBase
	}
}
