package grid

type Cell struct {
	Day      int  `json:"day"`
	Complete bool `json:"complete"`
}

type Row struct {
	HabitID string  `json:"habit_id"`
	Name    string  `json:"name"`
	Cells   []*Cell `json:"cells"`
}

// MonthGrid is the render model of the monthly tracker: one row per habit, one cell per day.
type MonthGrid struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Days  []int  `json:"days"`
	Rows  []*Row `json:"rows"`
}
