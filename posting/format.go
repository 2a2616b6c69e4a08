package posting

import "strconv"

// formatInt evita fmt só para o valor do Retry-After.
func formatInt(v int) string { return strconv.Itoa(v) }
