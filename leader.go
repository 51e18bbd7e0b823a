package so_sim

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// Motor names for the SO-101 leader, in servo ID order (1-6). These double
// as the URDF joint names carried on the wire, matching the stripped
// "<motor>.pos" keys the original streamer sent.
var so101MotorNames = []string{
	"shoulder_pan",
	"shoulder_lift",
	"elbow_flex",
	"wrist_flex",
	"wrist_roll",
	"gripper",
}

// MotorCalibration maps raw servo counts to a normalized range for one motor.
type MotorCalibration struct {
	ID       int `json:"id"`
	RangeMin int `json:"range_min"`
	RangeMax int `json:"range_max"`
}

// Normalize converts a raw servo count to [-1, 1] within the calibrated range.
func (c MotorCalibration) Normalize(raw int) float64 {
	size := float64(c.RangeMax - c.RangeMin)
	if size == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/size)*2 - 1
}

// LeaderCalibration holds per-motor calibration keyed by motor name.
type LeaderCalibration map[string]MotorCalibration

// DefaultLeaderCalibration covers an uncalibrated SO-101: full 4096-count
// range on every servo.
func DefaultLeaderCalibration() LeaderCalibration {
	cal := make(LeaderCalibration, len(so101MotorNames))
	for i, name := range so101MotorNames {
		cal[name] = MotorCalibration{ID: i + 1, RangeMin: 500, RangeMax: 3500}
	}
	return cal
}

// LoadLeaderCalibration reads a calibration JSON file.
func LoadLeaderCalibration(path string) (LeaderCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read calibration file")
	}
	var cal LeaderCalibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, errors.Wrap(err, "failed to parse calibration file")
	}
	return cal, nil
}

// LeaderConfig configures the leader-arm streamer.
type LeaderConfig struct {
	// Port is the serial device. Empty means scan candidate ports.
	Port     string        `json:"port,omitempty"`
	Baudrate int           `json:"baudrate,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
	FPS      int           `json:"fps,omitempty"`

	CalibrationFile string `json:"calibration_file,omitempty"`
}

// Validate fills defaults and resolves the serial port.
func (cfg *LeaderConfig) Validate(logger logging.Logger) error {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.FPS == 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.Port == "" {
		candidates := filterCandidatePorts(enumerateSerialPorts())
		if len(candidates) == 0 {
			return errors.New("no serial port specified and no candidate ports found")
		}
		cfg.Port = candidates[0]
		logger.Infof("auto-selected serial port %s", cfg.Port)
	}
	return nil
}

// Leader reads normalized joint positions from an SO-101 leader arm over the
// Feetech serial bus and publishes them as ActionMessages.
type Leader struct {
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	cal    LeaderCalibration
	logger logging.Logger
}

// NewLeader opens the serial bus and prepares the servo group.
func NewLeader(cfg LeaderConfig, logger logging.Logger) (*Leader, error) {
	cal := DefaultLeaderCalibration()
	if cfg.CalibrationFile != "" {
		loaded, err := LoadLeaderCalibration(cfg.CalibrationFile)
		if err != nil {
			return nil, err
		}
		cal = loaded
		logger.Infof("loaded calibration from %s", cfg.CalibrationFile)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.Baudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial bus on %s", cfg.Port)
	}

	ids := make([]int, 0, len(cal))
	for _, name := range so101MotorNames {
		if mc, ok := cal[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)

	logger.Infof("leader device connected on %s (%d servos)", cfg.Port, len(ids))
	return &Leader{bus: bus, group: group, cal: cal, logger: logger}, nil
}

// Close releases the serial bus.
func (l *Leader) Close() error {
	return l.bus.Close()
}

// ReadActions reads one sample of all motors, converted to radians for the
// arm joints. Normalized position -1..1 maps to -π..π, which is how the
// viewer's URDF joints are ranged.
func (l *Leader) ReadActions(ctx context.Context) (map[string]float64, error) {
	raw, err := l.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read positions")
	}

	actions := make(map[string]float64, len(raw))
	for name, mc := range l.cal {
		counts, ok := raw[mc.ID]
		if !ok {
			continue
		}
		actions[name] = mc.Normalize(counts) * math.Pi
	}
	return actions, nil
}

// Stream reads the leader at the configured rate and broadcasts each sample
// on the hub until ctx is cancelled.
func (l *Leader) Stream(ctx context.Context, fps int, hub *FeedHub) error {
	if fps <= 0 {
		fps = DefaultFPS
	}
	interval := time.Second / time.Duration(fps)
	l.logger.Infof("streaming actions at %d fps", fps)

	for goutils.SelectContextOrWait(ctx, interval) {
		actions, err := l.ReadActions(ctx)
		if err != nil {
			l.logger.Warnf("failed to read leader positions: %v", err)
			continue
		}
		hub.Broadcast(ActionMessage{
			Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
			Actions:   actions,
		})
	}
	l.logger.Info("leader stream stopped")
	return nil
}

// filterCandidatePorts filters serial ports by platform naming patterns.
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port matches USB serial adapter patterns.
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// enumerateSerialPorts returns all serial ports on the system.
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}
	var paths []string
	for _, port := range ports {
		paths = append(paths, port.Name)
	}
	return paths
}
