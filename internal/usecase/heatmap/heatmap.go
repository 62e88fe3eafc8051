// Package heatmap строит календарную сетку активности чтения за год:
// github-стиль, недели по семь дней начиная с воскресенья.
package heatmap

import (
	"time"

	"novelverse/internal/domain"
)

// DateLayout — формат дат выборки активности на проводе.
const DateLayout = "2006-01-02"

// Пороги интенсивности. Контракт отображения: легенда и ячейки обязаны
// использовать одни и те же границы.
const (
	Level1Min = 1
	Level2Min = 10
	Level3Min = 25
	Level4Min = 50
)

// Levels — количество уровней интенсивности, включая нулевой.
const Levels = 5

// Cell — одна ячейка сетки. Пустые ячейки выравнивают первую и последнюю
// неделю и данных не несут.
type Cell struct {
	Day       time.Time
	Present   bool
	PagesRead int
	Level     int
}

// Week — одна колонка сетки, всегда ровно семь ячеек.
type Week [7]Cell

// MonthLabel привязывает подпись месяца к индексу недели.
type MonthLabel struct {
	Month     string
	WeekIndex int
}

// Grid — готовая к отрисовке сетка за один год.
type Grid struct {
	Year   int
	Weeks  []Week
	Months []MonthLabel
}

// Level возвращает уровень интенсивности для количества прочитанных страниц.
func Level(pagesRead int) int {
	switch {
	case pagesRead < Level1Min:
		return 0
	case pagesRead < Level2Min:
		return 1
	case pagesRead < Level3Min:
		return 2
	case pagesRead < Level4Min:
		return 3
	default:
		return 4
	}
}

// parseDay разбирает дату выборки. Кроме ISO-даты принимается полный
// RFC3339, который отдают некоторые ручки бэкенда.
func parseDay(raw string) (time.Time, bool) {
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// BuildYear превращает разреженный список посуточных выборок в плотную сетку
// за указанный год. Результат детерминирован: никакой зависимости от часов
// кроме явного параметра года. Выборки с нечитаемой датой отбрасываются,
// выборки чужого года игнорируются, при дублях даты побеждает последняя.
func BuildYear(samples []domain.HeatmapSample, year int) Grid {
	byDay := make(map[time.Time]int, len(samples))
	for _, sample := range samples {
		day, ok := parseDay(sample.Date)
		if !ok {
			continue
		}
		if day.Year() != year {
			continue
		}
		pages := sample.PagesRead
		if pages < 0 {
			pages = 0
		}
		byDay[day] = pages
	}

	grid := Grid{Year: year}

	var week Week
	idx := int(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Weekday())

	first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		pages := byDay[day]
		week[idx] = Cell{Day: day, Present: true, PagesRead: pages, Level: Level(pages)}
		idx++
		if idx == 7 {
			grid.Weeks = append(grid.Weeks, week)
			week = Week{}
			idx = 0
		}
	}
	if idx > 0 {
		grid.Weeks = append(grid.Weeks, week)
	}

	grid.Months = monthLabels(grid.Weeks)
	return grid
}

// monthLabels вычисляет привязку подписей месяцев: подпись ставится на первую
// неделю и на каждую неделю, где месяц первого заполненного дня сменился.
func monthLabels(weeks []Week) []MonthLabel {
	var labels []MonthLabel
	lastMonth := time.Month(0)
	for weekIndex, week := range weeks {
		var firstDay time.Time
		found := false
		for _, cell := range week {
			if cell.Present {
				firstDay = cell.Day
				found = true
				break
			}
		}
		if !found {
			continue
		}
		month := firstDay.Month()
		if weekIndex == 0 || month != lastMonth {
			lastMonth = month
			labels = append(labels, MonthLabel{Month: firstDay.Format("Jan"), WeekIndex: weekIndex})
		}
	}
	return labels
}

// CurrentStreak считает текущую серию: число подряд идущих активных дней,
// заканчивающихся сегодня или вчера. Сегодняшний день без активности серию
// не обнуляет — читатель ещё может успеть.
func CurrentStreak(samples []domain.HeatmapSample, today time.Time) int {
	active := make(map[time.Time]bool, len(samples))
	for _, sample := range samples {
		day, ok := parseDay(sample.Date)
		if !ok || sample.PagesRead <= 0 {
			continue
		}
		active[day] = true
	}

	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	day := today
	if !active[day] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for active[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
