package driver

import "fmt"

// Button hardware reports and accepts sensitivity on an integer 0-255
// scale. The canonical settings vocabulary uses a 0-1 percentage, so this
// adapter rescales the field in both directions.
const buttonSensitivityScale = 255.0

// buttonDefaultSensitivity is used when the hardware reports no
// sensitivity at all.
const buttonDefaultSensitivity = 0.5

type buttonAdapter struct{}

func (buttonAdapter) TranslateCommand(name string, payload map[string]any) (string, map[string]any, error) {
	if name != CommandSettings {
		return name, payload, nil
	}

	raw, ok := payload["sensitivity"]
	if !ok {
		return name, payload, nil
	}
	fraction, ok := numberField(raw)
	if !ok || fraction < 0 || fraction > 1 {
		return "", nil, fmt.Errorf("sensitivity %v is not a fraction between 0 and 1", raw)
	}

	out := copyPayload(payload)
	out["sensitivity"] = int(fraction*buttonSensitivityScale + 0.5)
	return name, out, nil
}

func (buttonAdapter) TranslateEvent(event string, payload map[string]any) (string, map[string]any, error) {
	if event != EventLoad && event != EventDriverData {
		return event, payload, nil
	}

	settings, ok := payload["settings"].(map[string]any)
	if !ok {
		return event, payload, nil
	}

	scaled := buttonDefaultSensitivity * buttonSensitivityScale
	if raw, present := settings["sensitivity"]; present {
		n, isNum := numberField(raw)
		if !isNum || n < 0 || n > buttonSensitivityScale {
			return "", nil, fmt.Errorf("device sensitivity %v is not on the 0-255 scale", raw)
		}
		scaled = n
	}

	outSettings := copyPayload(settings)
	outSettings["sensitivity"] = scaled / buttonSensitivityScale

	out := copyPayload(payload)
	out["settings"] = outSettings
	return event, out, nil
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func numberField(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
