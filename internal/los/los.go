// Package los classifies hourly link load into HBEFA level-of-service
// classes and builds traffic situation labels.
package los

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/breatheroute/emissions/internal/emission"
)

// Classifier errors.
var (
	ErrUnknownRoadType   = errors.New("unknown road type")
	ErrUnknownAreaType   = errors.New("unknown area type")
	ErrInvalidThresholds = errors.New("invalid congestion thresholds")
	ErrMissingCarUnit    = errors.New("missing car unit factor")
	ErrInvalidSpeed      = errors.New("invalid speed")
)

// RoadType holds the classification parameters of one road type.
type RoadType struct {
	// Abbreviation is the HBEFA road category in traffic situation labels.
	Abbreviation string

	// Thresholds are the upper volume/capacity ratios of Freeflow, Heavy,
	// Saturated and StopAndGo. Ratios above the last threshold are StopAndGo2.
	Thresholds []float64

	// Speeds are the HBEFA speed classes in km/h, ascending.
	Speeds []float64
}

// Config holds the classifier tables.
type Config struct {
	RoadTypes map[string]RoadType

	// CarUnits converts vehicles of each class into passenger car units.
	CarUnits map[emission.VehicleClass]float64

	// AreaType selects the traffic situation prefix (Urban, Motorway, Rural).
	AreaType string
}

// AreaPrefixes maps area types to HBEFA traffic situation prefixes.
var AreaPrefixes = map[string]string{
	"Urban":    "URB",
	"Motorway": "MW",
	"Rural":    "RUR",
}

// DefaultConfig returns the urban classification tables used for the
// inventory.
func DefaultConfig() Config {
	return Config{
		RoadTypes: map[string]RoadType{
			"Motorway-Nat": {
				Abbreviation: "MW-Nat.",
				Thresholds:   []float64{0.75, 0.80, 0.95, 1.00},
				Speeds:       []float64{80, 90, 100, 110, 120, 130},
			},
			"Motorway-City": {
				Abbreviation: "MW-City",
				Thresholds:   []float64{0.75, 0.80, 0.95, 1.00},
				Speeds:       []float64{60, 70, 80, 90, 100, 110},
			},
			"TrunkRoad/Primary-National": {
				Abbreviation: "Trunk-Nat.",
				Thresholds:   []float64{0.50, 0.80, 0.90, 1.00},
				Speeds:       []float64{70, 80, 90, 100, 110, 120},
			},
			"TrunkRoad/Primary-City": {
				Abbreviation: "Trunk-City",
				Thresholds:   []float64{0.75, 0.80, 0.95, 1.00},
				Speeds:       []float64{50, 60, 70, 80, 90},
			},
			"Distributor/Secondary": {
				Abbreviation: "Distr.",
				Thresholds:   []float64{0.50, 0.80, 0.90, 1.00},
				Speeds:       []float64{30, 40, 50, 60, 70, 80},
			},
			"Local/Collector": {
				Abbreviation: "Local",
				Thresholds:   []float64{0.60, 0.80, 0.90, 1.00},
				Speeds:       []float64{30, 40, 50, 60},
			},
			"Access-residential": {
				Abbreviation: "Access",
				Thresholds:   []float64{0.60, 0.80, 0.90, 1.00},
				Speeds:       []float64{30, 40, 50},
			},
		},
		CarUnits: map[emission.VehicleClass]float64{
			emission.HGV: 3,
			emission.BUS: 3,
			emission.LCV: 2,
			emission.PC:  1,
			emission.MOT: 1,
		},
		AreaType: "Urban",
	}
}

// Classifier assigns congestion classes. It is immutable after construction.
type Classifier struct {
	roadTypes map[string]RoadType
	carUnits  map[emission.VehicleClass]float64
	prefix    string
}

// NewClassifier validates cfg and creates a classifier. Thresholds must be
// non-decreasing and there must be exactly one per class below StopAndGo2.
func NewClassifier(cfg Config) (*Classifier, error) {
	prefix, ok := AreaPrefixes[cfg.AreaType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAreaType, cfg.AreaType)
	}

	roadTypes := make(map[string]RoadType, len(cfg.RoadTypes))
	for name, rt := range cfg.RoadTypes {
		if len(rt.Thresholds) != len(emission.CongestionClasses)-1 {
			return nil, fmt.Errorf("%w: %s has %d thresholds", ErrInvalidThresholds, name, len(rt.Thresholds))
		}
		for i := 1; i < len(rt.Thresholds); i++ {
			if rt.Thresholds[i] < rt.Thresholds[i-1] {
				return nil, fmt.Errorf("%w: %s thresholds decrease at %d", ErrInvalidThresholds, name, i)
			}
		}
		if len(rt.Speeds) == 0 {
			return nil, fmt.Errorf("%w: %s has no speed classes", ErrInvalidThresholds, name)
		}
		roadTypes[name] = RoadType{
			Abbreviation: rt.Abbreviation,
			Thresholds:   append([]float64(nil), rt.Thresholds...),
			Speeds:       append([]float64(nil), rt.Speeds...),
		}
	}

	carUnits := make(map[emission.VehicleClass]float64, len(cfg.CarUnits))
	for vc, f := range cfg.CarUnits {
		carUnits[vc] = f
	}

	return &Classifier{roadTypes: roadTypes, carUnits: carUnits, prefix: prefix}, nil
}

// CarUnits converts hourly per-class volumes into passenger car units.
func (c *Classifier) CarUnits(volumes emission.VehicleVolumes) (float64, error) {
	var total float64
	for _, vc := range emission.VehicleClasses {
		v, ok := volumes[vc]
		if !ok {
			continue
		}
		f, ok := c.carUnits[vc]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingCarUnit, vc)
		}
		total += v * f
	}
	return total, nil
}

// Classify returns the congestion class for a load in car units on a road
// with the given hourly capacity. Zero capacity is treated as overloaded.
func (c *Classifier) Classify(volumeCarUnits, capacity float64, roadType string) (emission.CongestionClass, error) {
	rt, ok := c.roadTypes[roadType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRoadType, roadType)
	}
	return classify(ratio(volumeCarUnits, capacity), rt.Thresholds), nil
}

// ClassifyRatio classifies a plain volume/capacity ratio.
func (c *Classifier) ClassifyRatio(r float64, roadType string) (emission.CongestionClass, error) {
	rt, ok := c.roadTypes[roadType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRoadType, roadType)
	}
	return classify(r, rt.Thresholds), nil
}

func ratio(volume, capacity float64) float64 {
	if capacity <= 0 {
		if volume <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return volume / capacity
}

func classify(r float64, thresholds []float64) emission.CongestionClass {
	for i, t := range thresholds {
		if r <= t {
			return emission.CongestionClasses[i]
		}
	}
	return emission.StopAndGo2
}

// SnapSpeed returns the HBEFA speed class closest to speed.
func (c *Classifier) SnapSpeed(roadType string, speed float64) (float64, error) {
	rt, ok := c.roadTypes[roadType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRoadType, roadType)
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	return emission.Nearest(rt.Speeds, speed), nil
}

// TrafficSituation builds the HBEFA traffic situation label, for example
// "URB/Local/30/Freeflow". speed is snapped first.
func (c *Classifier) TrafficSituation(roadType string, speed float64, class emission.CongestionClass) (string, error) {
	rt, ok := c.roadTypes[roadType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoadType, roadType)
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	snapped := emission.Nearest(rt.Speeds, speed)
	return c.prefix + "/" + rt.Abbreviation + "/" + strconv.FormatFloat(snapped, 'f', -1, 64) + "/" + class.Label(), nil
}

// HasRoadType reports whether roadType is configured.
func (c *Classifier) HasRoadType(roadType string) bool {
	_, ok := c.roadTypes[roadType]
	return ok
}
