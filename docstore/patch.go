package docstore

import (
	"fmt"
	"strings"
)

// ApplyPatch devuelve una copia de data con patch mergeado a nivel de campo.
// Una clave "a.b.c" actualiza el campo anidado creando los mapas intermedios;
// un intermedio que no es mapa se reemplaza. Los demás campos se preservan.
func ApplyPatch(data, patch map[string]any) (map[string]any, error) {
	out := deepCopyMap(data)
	for key, v := range patch {
		if key == "" || strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") || strings.Contains(key, "..") {
			return nil, fmt.Errorf("%w: invalid field path %q", ErrInvalidQuery, key)
		}
		parts := strings.Split(key, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = deepCopy(v)
	}
	return out, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepCopy(x[i])
		}
		return out
	}
	return v
}
