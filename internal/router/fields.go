package router

// stringField, boolFieldDefault, and intFieldDefault read loosely-typed
// JSON-decoded operation bodies, tolerating the absence or wrong type of a
// key rather than erroring.

func stringField(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}

func boolFieldDefault(body map[string]any, key string, def bool) bool {
	if v, ok := body[key].(bool); ok {
		return v
	}
	return def
}

func intFieldDefault(body map[string]any, key string, def int) int {
	switch v := body[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
