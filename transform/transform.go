// Package transform turns raw driver readings into cooked events ready
// for the data sink, applying the profile's numeric transforms when
// data-transform is enabled.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/c360/devicesdk/models"
)

// ProcessEvent produces a cooked event for one command's readings. Each
// value is rendered through its resource definition; when transform is
// true the base/scale/offset parameters are applied to numeric values.
// A value that cannot be rendered, or an empty value list, yields a nil
// event and an error.
func ProcessEvent(deviceName string, cmd models.Command, profile *models.DeviceProfile, values []models.CommandValue, transform bool) (*models.CookedEvent, error) {
	origin := models.NowMillis()
	readings := make([]models.Reading, 0, len(values))

	for _, v := range values {
		rendered, err := renderValue(profile, v, transform)
		if err != nil {
			return nil, fmt.Errorf("transform: device %s resource %s: %w", deviceName, v.Resource, err)
		}
		ro := v.Origin
		if ro == 0 {
			ro = origin
		}
		readings = append(readings, models.Reading{
			Name:   v.Resource,
			Value:  rendered,
			Origin: ro,
		})
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("transform: device %s command %s produced no readings", deviceName, cmd.Name)
	}

	payload, err := json.Marshal(models.Event{
		Device:   deviceName,
		Origin:   origin,
		Readings: readings,
	})
	if err != nil {
		return nil, fmt.Errorf("transform: marshal event: %w", err)
	}

	return &models.CookedEvent{
		Device:      deviceName,
		ContentType: "application/json",
		Payload:     payload,
	}, nil
}

// renderValue converts one raw value to its wire string.
func renderValue(profile *models.DeviceProfile, v models.CommandValue, transform bool) (string, error) {
	res, haveRes := profile.FindResource(v.Resource)

	f, numeric := numericValue(v.Value)
	if numeric {
		if transform && haveRes {
			f = applyTransform(f, res.Properties)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("transform produced non-finite value")
		}
		if isIntegerType(res.Properties.ValueType) || (!haveRes && f == math.Trunc(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}

	switch t := v.Value.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case []byte:
		return string(t), nil
	case nil:
		return "", fmt.Errorf("nil value")
	default:
		return fmt.Sprintf("%v", t), nil
	}
}

// applyTransform computes base^v, then v*scale, then v+offset, matching
// the platform's data-transform order.
func applyTransform(v float64, p models.ResourceProperties) float64 {
	if p.Base != nil && *p.Base != 0 {
		v = math.Pow(*p.Base, v)
	}
	if p.Scale != nil {
		v *= *p.Scale
	}
	if p.Offset != nil {
		v += *p.Offset
	}
	return v
}

// numericValue extracts a float64 from the numeric types drivers
// produce.
func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// isIntegerType reports whether a profile value type names an integer.
func isIntegerType(t string) bool {
	switch t {
	case "Int8", "Int16", "Int32", "Int64", "Uint8", "Uint16", "Uint32", "Uint64":
		return true
	default:
		return false
	}
}
