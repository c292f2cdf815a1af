package format

// Phase names one step of the run as shown to the operator.
type Phase string

const (
	PhaseMBR          Phase = "Writing partition table"
	PhaseSystemHeader Phase = "Writing MEGA65 System Partition header sector"
	PhaseSystemConfig Phase = "Writing system configuration sector"
	PhaseSystemErase  Phase = "Erasing configuration area"
	PhaseSlotDirs     Phase = "Erasing frozen program and system service directories"
	PhaseBootSector   Phase = "Writing FAT Boot Sector"
	PhaseFSInfo       Phase = "Writing FAT Information Block (and backup copy)"
	PhaseFATs         Phase = "Writing FATs"
	PhaseRootDir      Phase = "Writing Root Directory"
	PhaseClearFAT     Phase = "Clearing file system data structures"
	PhaseSeed         Phase = "Populating files"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseMBR,
	PhaseSystemHeader,
	PhaseSystemConfig,
	PhaseSystemErase,
	PhaseSlotDirs,
	PhaseBootSector,
	PhaseFSInfo,
	PhaseFATs,
	PhaseRootDir,
	PhaseClearFAT,
	PhaseSeed,
}

// Progress receives the run as it happens. Calls come from the goroutine
// running Format.
type Progress interface {
	// Start is called once the plan is known, before confirmation.
	Start(p Plan)
	// Phase is called when a phase begins.
	Phase(ph Phase)
	// Written reports count sectors from first written or erased.
	Written(first, count uint32)
	// Message reports one operator-facing line.
	Message(msg string)
}

type nopProgress struct{}

func (nopProgress) Start(Plan)             {}
func (nopProgress) Phase(Phase)            {}
func (nopProgress) Written(uint32, uint32) {}
func (nopProgress) Message(string)         {}
