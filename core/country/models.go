package country

type Country struct {
	ID   int    `json:"id"`
	Code string `json:"code"` // ISO 3166 alpha-2 (seeded) or alpha-3
	Name string `json:"name"`
}
