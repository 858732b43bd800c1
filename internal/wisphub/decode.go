package wisphub

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TicketFromRaw projects a loosely typed upstream record. The upstream API mixes numbers and
// strings for ids, states and priorities, and nests technician and service as objects in
// some endpoints.
func TicketFromRaw(raw map[string]any) Ticket {
	t := Ticket{
		ID:          firstString(raw, "id_ticket", "id"),
		Subject:     getString(raw, "asunto"),
		Description: getString(raw, "descripcion"),
		CreatedBy:   firstString(raw, "creado_por", "usuario_creo"),
		Department:  getString(raw, "departamento"),
		ClientName:  firstString(raw, "nombre_cliente", "cliente"),
		Raw:         raw,
	}

	switch tech := raw["tecnico"].(type) {
	case map[string]any:
		t.Technician = firstString(tech, "nombre", "name")
		t.TechnicianUsername = firstString(tech, "usuario", "username", "email")
		t.TechnicianID = getInt(tech, "id")
	default:
		t.Technician = getString(raw, "tecnico")
		t.TechnicianID = getInt(raw, "tecnico")
	}
	if u := firstString(raw, "tecnico_usuario", "usuario_tecnico"); u != "" {
		t.TechnicianUsername = u
	}
	if id := getInt(raw, "tecnico_id"); id != 0 {
		t.TechnicianID = id
	}
	if t.TechnicianID != 0 && t.Technician == strconv.Itoa(t.TechnicianID) {
		t.Technician = ""
	}
	if n := getString(raw, "nombre_tecnico"); n != "" {
		t.Technician = n
	}

	switch st := raw["estado"].(type) {
	case map[string]any:
		t.Status = firstString(st, "nombre", "name")
		t.StatusID = getInt(st, "id")
	default:
		t.StatusID = getInt(raw, "estado")
		if t.StatusID == 0 {
			t.Status = getString(raw, "estado")
		}
	}
	if id := getInt(raw, "id_estado"); id != 0 {
		t.StatusID = id
	}

	t.PriorityLabel = getString(raw, "prioridad")
	t.Priority = ParsePriority(raw["prioridad"])

	switch svc := raw["servicio"].(type) {
	case map[string]any:
		t.ClientID = firstString(svc, "id_servicio", "id")
		if t.ClientName == "" {
			t.ClientName = firstString(svc, "nombre", "cliente")
		}
	default:
		t.ClientID = firstString(raw, "servicio", "id_servicio")
	}

	t.CreatedAt = parseTime(firstString(raw, "fecha_creacion", "created_at"))
	return t
}

// ParsePriority accepts the numeric class or its Spanish/English label.
func ParsePriority(v any) Priority {
	if n := toInt(v); n >= int(PriorityLow) && n <= int(PriorityCritical) {
		return Priority(n)
	}
	s, _ := v.(string)
	switch normalizeKey(s) {
	case "baja", "low":
		return PriorityLow
	case "normal", "media", "medium":
		return PriorityNormal
	case "alta", "high":
		return PriorityHigh
	case "muy alta", "very high", "urgente":
		return PriorityVeryHigh
	case "critica", "crítica", "critical":
		return PriorityCritical
	}
	return PriorityUnknown
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := getString(m, k); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if i := getInt(m, k); i != 0 {
			return i
		}
	}
	return 0
}

func getString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func getInt(m map[string]any, key string) int {
	return toInt(m[key])
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
