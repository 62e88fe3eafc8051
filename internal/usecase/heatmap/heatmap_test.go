package heatmap

import (
	"testing"
	"time"

	"novelverse/internal/domain"
)

func countPresent(grid Grid) int {
	n := 0
	for _, week := range grid.Weeks {
		for _, cell := range week {
			if cell.Present {
				n++
			}
		}
	}
	return n
}

func cellFor(t *testing.T, grid Grid, date string) Cell {
	t.Helper()
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		t.Fatalf("плохая дата в тесте: %v", err)
	}
	for _, week := range grid.Weeks {
		for _, cell := range week {
			if cell.Present && cell.Day.Equal(day) {
				return cell
			}
		}
	}
	t.Fatalf("в сетке нет дня %s", date)
	return Cell{}
}

func TestBuildYearLeapYear(t *testing.T) {
	grid := BuildYear(nil, 2024)
	if grid.Year != 2024 {
		t.Fatalf("ожидали год 2024, получили %d", grid.Year)
	}
	if n := countPresent(grid); n != 366 {
		t.Fatalf("в 2024 году 366 дней, получили %d заполненных ячеек", n)
	}
	for _, week := range grid.Weeks {
		for _, cell := range week {
			if cell.Present && cell.Level != 0 {
				t.Fatalf("без выборок все уровни нулевые, день %s уровень %d", cell.Day.Format(DateLayout), cell.Level)
			}
		}
	}
}

func TestBuildYearPadsFirstWeek(t *testing.T) {
	// 1 января 2024 — понедельник, воскресная ячейка первой недели пустая
	grid := BuildYear(nil, 2024)
	if len(grid.Weeks) == 0 {
		t.Fatalf("ожидали непустую сетку")
	}
	first := grid.Weeks[0]
	if first[0].Present {
		t.Fatalf("ожидали пустую воскресную ячейку перед 1 января")
	}
	if !first[1].Present || first[1].Day.Day() != 1 {
		t.Fatalf("ожидали 1 января в ячейке понедельника, получили %+v", first[1])
	}
}

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		pages int
		level int
	}{
		{0, 0},
		{1, 1},
		{9, 1},
		{10, 2},
		{24, 2},
		{25, 3},
		{49, 3},
		{50, 4},
		{500, 4},
	}
	for _, tc := range cases {
		if got := Level(tc.pages); got != tc.level {
			t.Fatalf("для %d страниц ожидали уровень %d, получили %d", tc.pages, tc.level, got)
		}
	}
}

func TestBuildYearFillsSamples(t *testing.T) {
	samples := []domain.HeatmapSample{
		{Date: "2024-03-15", PagesRead: 12},
		{Date: "2024-03-16", PagesRead: 50},
	}
	grid := BuildYear(samples, 2024)

	cell := cellFor(t, grid, "2024-03-15")
	if cell.PagesRead != 12 || cell.Level != 2 {
		t.Fatalf("ожидали 12 страниц уровня 2, получили %+v", cell)
	}
	cell = cellFor(t, grid, "2024-03-16")
	if cell.Level != 4 {
		t.Fatalf("ожидали уровень 4 для 50 страниц, получили %d", cell.Level)
	}
	cell = cellFor(t, grid, "2024-03-14")
	if cell.PagesRead != 0 || cell.Level != 0 {
		t.Fatalf("день без выборки должен быть нулевым, получили %+v", cell)
	}
}

func TestBuildYearDropsBadSamples(t *testing.T) {
	samples := []domain.HeatmapSample{
		{Date: "не дата", PagesRead: 99},
		{Date: "2023-12-31", PagesRead: 99},
		{Date: "2025-01-01", PagesRead: 99},
		{Date: "2024-07-01", PagesRead: -5},
		{Date: "2024-07-02T10:30:00Z", PagesRead: 7},
	}
	grid := BuildYear(samples, 2024)

	cell := cellFor(t, grid, "2024-07-01")
	if cell.PagesRead != 0 {
		t.Fatalf("отрицательная выборка должна обнуляться, получили %d", cell.PagesRead)
	}
	cell = cellFor(t, grid, "2024-07-02")
	if cell.PagesRead != 7 || cell.Level != 1 {
		t.Fatalf("выборка в формате RFC3339 должна засчитываться, получили %+v", cell)
	}
	total := 0
	for _, week := range grid.Weeks {
		for _, c := range week {
			total += c.PagesRead
		}
	}
	if total != 7 {
		t.Fatalf("чужие года и мусор должны игнорироваться, сумма страниц %d", total)
	}
}

func TestBuildYearDuplicateDateLastWins(t *testing.T) {
	samples := []domain.HeatmapSample{
		{Date: "2024-05-05", PagesRead: 3},
		{Date: "2024-05-05", PagesRead: 30},
	}
	grid := BuildYear(samples, 2024)
	cell := cellFor(t, grid, "2024-05-05")
	if cell.PagesRead != 30 {
		t.Fatalf("при дублях даты побеждает последняя выборка, получили %d", cell.PagesRead)
	}
}

func TestMonthLabels(t *testing.T) {
	grid := BuildYear(nil, 2024)
	if len(grid.Months) != 12 {
		t.Fatalf("ожидали 12 подписей месяцев, получили %d", len(grid.Months))
	}
	if grid.Months[0].Month != "Jan" || grid.Months[0].WeekIndex != 0 {
		t.Fatalf("ожидали Jan на первой неделе, получили %+v", grid.Months[0])
	}
	for i := 1; i < len(grid.Months); i++ {
		if grid.Months[i].WeekIndex <= grid.Months[i-1].WeekIndex {
			t.Fatalf("индексы недель подписей должны расти: %+v", grid.Months)
		}
	}
}

func TestCurrentStreak(t *testing.T) {
	today := time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC)
	samples := []domain.HeatmapSample{
		{Date: "2024-06-10", PagesRead: 5},
		{Date: "2024-06-09", PagesRead: 5},
		{Date: "2024-06-08", PagesRead: 5},
		{Date: "2024-06-06", PagesRead: 5},
	}
	if got := CurrentStreak(samples, today); got != 3 {
		t.Fatalf("ожидали серию 3, получили %d", got)
	}
}

func TestCurrentStreakSurvivesToday(t *testing.T) {
	// сегодня ещё не читали, но вчерашняя серия не сгорает
	today := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	samples := []domain.HeatmapSample{
		{Date: "2024-06-09", PagesRead: 5},
		{Date: "2024-06-08", PagesRead: 5},
	}
	if got := CurrentStreak(samples, today); got != 2 {
		t.Fatalf("ожидали серию 2, получили %d", got)
	}
	if got := CurrentStreak(nil, today); got != 0 {
		t.Fatalf("без активности серия нулевая, получили %d", got)
	}
}
