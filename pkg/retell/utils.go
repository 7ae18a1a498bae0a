package retell

import (
	"encoding/json"
	"net/http"
)

// Helper functions for type assertions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getFloat64(data map[string]interface{}, key string) (float64, bool) {
	val, ok := data[key]
	if !ok {
		return 0, false
	}
	switch num := val.(type) {
	case float64:
		return num, true
	case int64:
		return float64(num), true
	case int:
		return float64(num), true
	case json.Number:
		f, err := num.Float64()
		return f, err == nil
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
