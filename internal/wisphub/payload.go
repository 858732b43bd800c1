package wisphub

import "strings"

// UpdateChanges are the only fields a caller may override on a full-record update.
type UpdateChanges struct {
	TechnicianID    *int
	Priority        *int
	Status          *int
	AppendNote      string
	AllowedSubjects []string
	DefaultSubject  string
}

// BuildUpdatePayload copies every field of the fetched record forward, flattening nested
// objects to their ids, and applies only the requested overrides. The upstream PUT treats
// missing fields as zero values, so the payload is never built from a partial object.
func BuildUpdatePayload(raw map[string]any, ch UpdateChanges) map[string]any {
	payload := make(map[string]any, len(raw)+4)
	for k, v := range raw {
		if nested, ok := v.(map[string]any); ok {
			if id := nestedID(nested); id != nil {
				payload[k] = id
				continue
			}
		}
		payload[k] = v
	}

	if svc, ok := raw["servicio"].(map[string]any); ok {
		if id := firstString(svc, "id_servicio", "id"); id != "" {
			payload["servicio"] = id
		}
	}
	if id := getInt(raw, "tecnico_id"); id != 0 {
		payload["tecnico"] = id
	}

	subject := getString(raw, "asunto")
	if len(ch.AllowedSubjects) > 0 && !containsFold(ch.AllowedSubjects, subject) {
		subject = ch.DefaultSubject
	}
	payload["asunto"] = subject

	if ch.TechnicianID != nil {
		payload["tecnico"] = *ch.TechnicianID
	}
	if ch.Priority != nil {
		payload["prioridad"] = *ch.Priority
	}
	if ch.Status != nil {
		payload["estado"] = *ch.Status
	}
	if note := strings.TrimSpace(ch.AppendNote); note != "" {
		desc := getString(raw, "descripcion")
		if desc == "" {
			payload["descripcion"] = note
		} else {
			payload["descripcion"] = desc + "\n\n" + note
		}
	}
	return payload
}

func nestedID(m map[string]any) any {
	for _, k := range []string{"id", "id_servicio", "id_estado"} {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
