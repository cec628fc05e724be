package station

import (
	"fmt"
	"time"

	"github.com/oora/tellerloop/core/model"
)

// SendProcedure loads a capsule from the bay into the tube and starts the
// blower. The sequence mirrors the station mechanics: drop at S1, carry to
// the launch gate at S2, confirm the capsule entered the tube at P3.
func SendProcedure() Procedure {
	return Procedure{
		Op:       model.OpSend,
		SkipWhen: SensorNone,
		phases: []phase{
			waitPhase{SensorP1, "capsule detected at bay"},
			movePhase{DirLeft, SensorS1, 2, false, "capsule dropped"},
			waitPhase{SensorP2, "capsule at launch position"},
			movePhase{DirRight, SensorS2, 3, true, "belt at launch gate"},
			waitPhase{SensorP3, "capsule entered tube"},
			auxPhase{true, "blower on"},
		},
	}
}

// ReceiveProcedure catches an inbound capsule and parks it in the pickup
// bay, then resets the belt to the passthrough position.
func ReceiveProcedure() Procedure {
	return Procedure{
		Op:       model.OpReceive,
		SkipWhen: SensorNone,
		phases: []phase{
			waitPhase{SensorP3, "capsule arriving"},
			auxPhase{false, "blower off"},
			movePhase{DirLeft, SensorS3, 3, false, "belt at catch position"},
			auxPhase{true, "blower suction on"},
			pausePhase{200 * time.Millisecond, "capsule picked"},
			waitPhase{SensorP4, "capsule at pickup bay"},
			auxPhase{false, "blower off"},
			movePhase{DirRight, SensorS4, 3, true, "capsule parked"},
			pausePhase{2 * time.Second, "capsule settled"},
			movePhase{DirLeft, SensorS2, 1, false, "belt reset"},
		},
	}
}

// SelfTestProcedure runs a full local send plus receive cycle without the
// tube, exercising every sensor and both belt directions.
func SelfTestProcedure() Procedure {
	return Procedure{
		Op:       model.OpSelfTest,
		SkipWhen: SensorNone,
		phases: []phase{
			waitPhase{SensorP1, "capsule detected at bay"},
			movePhase{DirLeft, SensorS1, 2, false, "capsule dropped"},
			waitPhase{SensorP2, "capsule at launch position"},
			movePhase{DirRight, SensorS2, 3, true, "belt at launch gate"},
			waitPhase{SensorP3, "capsule at transfer point"},
			movePhase{DirLeft, SensorS3, 2, false, "belt at catch position"},
			auxPhase{true, "blower suction on"},
			waitPhase{SensorP4, "capsule at pickup bay"},
			auxPhase{false, "blower off"},
			movePhase{DirRight, SensorS4, 3, true, "capsule parked"},
			pausePhase{2 * time.Second, "capsule settled"},
			movePhase{DirLeft, SensorS2, 1, false, "belt reset"},
		},
	}
}

// PassthroughProcedure aligns the belt so capsules for other stations can
// travel through. It is a no-op when S2 already holds the belt there.
func PassthroughProcedure() Procedure {
	return Procedure{
		Op:       model.OpPassthrough,
		SkipWhen: SensorS2,
		phases: []phase{
			movePhase{DirLeft, SensorS1, 2, false, "belt at drop position"},
			movePhase{DirRight, SensorS2, 3, false, "belt at passthrough position"},
		},
	}
}

// JogProcedure nudges the belt a fixed number of steps for maintenance.
func JogProcedure(dir Direction) Procedure {
	op := model.OpJogLeft
	if dir == DirRight {
		op = model.OpJogRight
	}
	return Procedure{
		Op:       op,
		SkipWhen: SensorNone,
		phases: []phase{
			jogPhase{dir, "belt jogged " + dir.String()},
		},
	}
}

// ProcedureFor maps a wire operation name to its procedure.
func ProcedureFor(op string) (Procedure, error) {
	switch op {
	case model.OpSend:
		return SendProcedure(), nil
	case model.OpReceive:
		return ReceiveProcedure(), nil
	case model.OpSelfTest:
		return SelfTestProcedure(), nil
	case model.OpPassthrough:
		return PassthroughProcedure(), nil
	case model.OpJogLeft:
		return JogProcedure(DirLeft), nil
	case model.OpJogRight:
		return JogProcedure(DirRight), nil
	}
	return Procedure{}, fmt.Errorf("unknown operation %q", op)
}
