package configurator

import (
	"time"

	"go.uber.org/zap"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/solution"
	"github.com/bramburn/fc-gps/internal/telemetry"
)

// State is the top-level configurator state, spec.md §4.E.
type State int

const (
	StateUnknown State = iota
	StateDetectBaud
	StateChangeBaud
	StateConfigure
	StateReceivingData
	StateLostCommunication
)

// BaudTable is the candidate baud cycle order for DETECT_BAUD.
var BaudTable = []int{230400, 115200, 57600, 38400, 19200, 9600}

const (
	monVerPollSpacing   = 330 * time.Millisecond
	monVerPollsPerBaud  = 3
	baudSettleWait      = monVerPollsPerBaud * monVerPollSpacing
	ackImplicitTimeout  = 150 * time.Millisecond
	interStepSpacing    = 110 * time.Millisecond
	configureEntryGrace = 1000 * time.Millisecond
	navMessageTimeout   = 2500 * time.Millisecond
)

// totalConfigureSteps is the 21-step CONFIGURE sequence (UBLOX_DETECT_UNIT
// .. UBLOX_MSG_CFG_GNSS), before the 22nd COMPLETE transition.
const totalConfigureSteps = 21

// Configurator drives a u-blox (or NMEA-only) GNSS receiver from an unknown
// baud rate to a configured, streaming RECEIVING_DATA state. It is ticked
// once per task cycle and never blocks: it acts only when the port's
// transmit buffer is empty, matching spec.md §4.E.
type Configurator struct {
	cfg   config.Config
	port  port.Port
	intp  *interp.Interpreter
	clock clock.Clock

	state State

	baudCandidateIdx int
	pollsAtCandidate int
	candidateEnteredAt time.Time
	tempBaudRateIndex  int

	changeBaudEnteredAt time.Time

	stepIdx            int
	enteredConfigureAt time.Time
	lastSendAt         time.Time
	awaitingAck        bool
	ackSentAt          time.Time
	pendingAckClass    byte
	pendingAckID       byte

	lastNavMessageAt time.Time
	haveLastNav      bool
	navRateOneShotSent bool

	TimeoutsCount int

	log *telemetry.Logger
}

// New returns a Configurator ready to begin DETECT_BAUD on the first Tick.
func New(cfg config.Config, p port.Port, intp *interp.Interpreter, clk clock.Clock) *Configurator {
	c := &Configurator{cfg: cfg, port: p, intp: intp, clock: clk, log: telemetry.Nop().Named("configurator")}
	if p != nil {
		c.state = StateDetectBaud
		c.baudCandidateIdx = cfg.BaudRateIndex % len(BaudTable)
		c.candidateEnteredAt = clk.Now()
	}
	return c
}

// SetLogger replaces the configurator's logger; the zero value is a no-op
// logger, so this is optional.
func (c *Configurator) SetLogger(l *telemetry.Logger) { c.log = l.Named("configurator") }

// State reports the current top-level state.
func (c *Configurator) State() State { return c.state }

// IsHealthy is true iff the configurator has reached RECEIVING_DATA,
// matching spec.md §7's is_healthy() contract.
func (c *Configurator) IsHealthy() bool { return c.state == StateReceivingData }

// OnNavMessage must be called by the task driver whenever the interpreter
// reports a new navigation solution; it feeds RECEIVING_DATA's 2500 ms
// timeout watchdog.
func (c *Configurator) OnNavMessage(now time.Time) {
	c.lastNavMessageAt = now
	c.haveLastNav = true
}

func (c *Configurator) cap() Capability {
	return Capability{Gen: generationFromPlatform(c.intp.Platform())}
}

// Tick advances the configurator by one step given the current time and
// solution snapshot. It never blocks.
func (c *Configurator) Tick(sol *solution.Solution, sats *solution.SatelliteList) {
	if c.port == nil {
		return // spec.md §7: no serial port configured, ticks are no-ops.
	}
	now := c.clock.Now()

	switch c.state {
	case StateUnknown:
		// non-serial providers (MSP/VIRTUAL) never reach here in this
		// implementation; port==nil already short-circuited above.
	case StateDetectBaud:
		c.tickDetectBaud(now)
	case StateChangeBaud:
		c.tickChangeBaud(now)
	case StateConfigure:
		c.tickConfigure(now)
	case StateReceivingData:
		c.tickReceivingData(now, sol, sats)
	case StateLostCommunication:
		c.enterDetectBaud(now)
	}
}

func (c *Configurator) tickDetectBaud(now time.Time) {
	// A platform answer may arrive at any point in the poll cycle, not just
	// on a poll-spacing boundary, so this check is never gated by timing.
	if c.intp.Platform() != interp.PlatformUndef {
		if !c.port.TxBufferEmpty() {
			return
		}
		baud := BaudTable[c.cfg.BaudRateIndex%len(BaudTable)]
		_ = c.port.WriteAll(PUBXBaudCommand(baud))
		c.tempBaudRateIndex = c.baudCandidateIdx
		c.state = StateChangeBaud
		c.changeBaudEnteredAt = now
		c.log.Info("module detected", zap.Int("platform", int(c.intp.Platform())), zap.Int("target_baud", baud))
		return
	}

	if c.pollsAtCandidate != 0 && now.Sub(c.candidateEnteredAt) < time.Duration(c.pollsAtCandidate)*monVerPollSpacing {
		return
	}
	if !c.port.TxBufferEmpty() {
		return
	}
	if c.pollsAtCandidate >= monVerPollsPerBaud {
		c.baudCandidateIdx = (c.baudCandidateIdx + 1) % len(BaudTable)
		c.pollsAtCandidate = 0
		c.candidateEnteredAt = now
		_ = c.port.SetBaud(BaudTable[c.baudCandidateIdx])
		return
	}
	_ = c.port.WriteAll(PollMonVer())
	c.pollsAtCandidate++
}

func (c *Configurator) tickChangeBaud(now time.Time) {
	if now.Sub(c.changeBaudEnteredAt) < baudSettleWait {
		return
	}
	_ = c.port.SetBaud(BaudTable[c.cfg.BaudRateIndex%len(BaudTable)])
	if c.cfg.AutoConfig == config.AutoConfigOff {
		c.state = StateReceivingData
		c.haveLastNav = false
		return
	}
	c.state = StateConfigure
	c.stepIdx = 0
	c.enteredConfigureAt = now
	c.awaitingAck = false
}

func (c *Configurator) tickConfigure(now time.Time) {
	if c.awaitingAck {
		switch c.intp.AckState() {
		case interp.AckGotAck:
			c.intp.ConsumeAck()
			c.advanceStep(now)
		case interp.AckGotNack:
			c.intp.ConsumeAck()
			if c.stepIdx == 0 {
				// version mismatch at DETECT_UNIT must not be ignored.
				c.stepIdx = 0
				c.awaitingAck = false
				c.enteredConfigureAt = now
				return
			}
			c.advanceStep(now)
		default:
			if now.Sub(c.ackSentAt) >= ackImplicitTimeout {
				c.advanceStep(now)
			}
		}
		return
	}

	if c.stepIdx >= totalConfigureSteps {
		c.state = StateReceivingData
		c.haveLastNav = false
		c.log.Info("configure complete")
		return
	}

	minGap, since := interStepSpacing, c.lastSendAt
	if c.stepIdx == 0 {
		minGap, since = configureEntryGrace, c.enteredConfigureAt
	}
	if now.Sub(since) < minGap {
		return
	}
	if !c.port.TxBufferEmpty() {
		return
	}

	cmd, class, id, expectAck := c.buildConfigureStep(c.stepIdx)
	c.lastSendAt = now
	if cmd == nil {
		c.stepIdx++
		return
	}
	_ = c.port.WriteAll(cmd)
	if expectAck {
		c.intp.BeginAckWait(class, id)
		c.awaitingAck = true
		c.ackSentAt = now
		c.pendingAckClass = class
		c.pendingAckID = id
	} else {
		c.stepIdx++
	}
}

func (c *Configurator) advanceStep(now time.Time) {
	c.awaitingAck = false
	c.stepIdx++
	c.lastSendAt = now
}

func (c *Configurator) tickReceivingData(now time.Time, sol *solution.Solution, sats *solution.SatelliteList) {
	if c.haveLastNav && now.Sub(c.lastNavMessageAt) > navMessageTimeout {
		sol.NumSat = 0
		sol.Fix = false
		sats.Reset()
		c.TimeoutsCount++
		c.log.Warn("nav message timeout, re-entering DETECT_BAUD", zap.Int("timeouts", c.TimeoutsCount))
		c.enterLostCommunication(now)
		return
	}

	if sol.Fix && !c.navRateOneShotSent && c.port.TxBufferEmpty() {
		model := applyModelOffset(c.cfg.UbloxFlightModel)
		_ = c.port.WriteAll(c.cap().SetDynamicModel(model))
		c.navRateOneShotSent = true
	}
}

func (c *Configurator) enterLostCommunication(now time.Time) {
	c.state = StateLostCommunication
	c.enterDetectBaud(now)
}

func (c *Configurator) enterDetectBaud(now time.Time) {
	c.state = StateDetectBaud
	c.baudCandidateIdx = c.cfg.BaudRateIndex % len(BaudTable)
	c.pollsAtCandidate = 0
	c.candidateEnteredAt = now
	c.navRateOneShotSent = false
}

// buildConfigureStep returns the command for CONFIGURE step idx (0..20),
// the (class,id) to arm the ACK wait on, and whether an ACK is expected at
// all — matching the 21-step sequence named in spec.md §4.E.
func (c *Configurator) buildConfigureStep(idx int) (cmd []byte, class, id byte, expectAck bool) {
	capb := c.cap()
	m7 := c.intp.M7OrAbove()
	m8 := c.intp.M8OrAbove()

	switch idx {
	case 0: // detect unit
		return PollMonVer(), interp.ClassMon, interp.MsgMonVer, true

	case 1: // slow nav rate to 1 Hz for acquisition
		return capb.SetNavRate(1000), classCFG, msgCfgRate, true

	case 2, 3, 4, 5, 6, 7: // VGS/GSV/GLL/GGA/GSA/RMC disables, one CFG-MSG each
		if c.intp.M9OrAbove() {
			return nil, 0, 0, false
		}
		return capb.DisableNMEA(idx - 2), classCFG, msgCfgMsg, true

	case 8: // RMC disable already issued as the sixth item at step 7; no
		// further command needed, this step only exists to keep the
		// original's 21-step numbering intact.
		return nil, 0, 0, false

	case 9: // set dynamic model for acquisition
		return capb.SetDynamicModel(applyModelOffset(c.cfg.UbloxAcquireModel)), classCFG, msgCfgNav5, true

	case 10: // set SBAS
		enable, mask := sbasConfig(c.cfg)
		return capb.SetSBAS(enable, mask), classCFG, msgCfgSBAS, true

	case 11: // set power mode (M8+ only)
		if !m8 {
			return nil, 0, 0, false
		}
		return capb.SetPowerMode(0), classCFG, msgCfgPMS, true

	case 12: // enable NAV-PVT (M7+) else disable (superseded)
		rate := byte(0)
		if m7 {
			rate = 1
		}
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavPVT, rate), classCFG, msgCfgMsg, true

	case 13: // NAV-SOL: enabled pre-M7, disabled (superseded) on M7+
		rate := byte(1)
		if m7 {
			rate = 0
		}
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavSOL, rate), classCFG, msgCfgMsg, true

	case 14: // NAV-POSLLH
		rate := byte(1)
		if m7 {
			rate = 0
		}
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavPosLLH, rate), classCFG, msgCfgMsg, true

	case 15: // NAV-STATUS
		rate := byte(1)
		if m7 {
			rate = 0
		}
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavStatus, rate), classCFG, msgCfgMsg, true

	case 16: // NAV-VELNED
		rate := byte(1)
		if m7 {
			rate = 0
		}
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavVelNED, rate), classCFG, msgCfgMsg, true

	case 17: // NAV-DOP rate
		return capb.SetMessageRate(interp.ClassNav, interp.MsgNavDOP, 1), classCFG, msgCfgMsg, true

	case 18: // SAT-INFO, divisor 5: NAV-SAT on M8+, NAV-SVINFO pre-M8
		msgID := byte(interp.MsgNavSVInfo)
		if m8 {
			msgID = interp.MsgNavSat
		}
		return capb.SetMessageRate(interp.ClassNav, msgID, 5), classCFG, msgCfgMsg, true

	case 19: // set user nav rate
		measRateMs := uint16(1000 / maxInt(1, c.cfg.UpdateRateHz))
		return capb.SetNavRate(measRateMs), classCFG, msgCfgRate, true

	case 20: // poll CFG-GNSS only when SBAS/Galileo preference needs a rewrite
		if c.cfg.SBASMode == config.SBASAuto && !c.cfg.UbloxUseGalileo {
			return nil, 0, 0, false
		}
		return capb.PollCfgGNSS(), classCFG, msgCfgGNSS, true

	default:
		return nil, 0, 0, false
	}
}

// applyModelOffset applies the "+1 offset" from spec.md §6: model id 1 is
// reserved, so any non-zero user model id is shifted up by one before it
// reaches the wire.
func applyModelOffset(model int) byte {
	if model <= 0 {
		return byte(model)
	}
	return byte(model + 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
