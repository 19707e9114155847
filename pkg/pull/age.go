package pull

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseAge converts a displayed thread age ("5 минут назад", "вчера",
// "10.3 часа назад", "01.02.2024") to days. Clipped threads render
// unreliable ages; callers must not gate on those.
func ParseAge(s string) (float64, error) {
	s = strings.ToLower(collapse(s))
	if s == "" {
		return 0, fmt.Errorf("empty age")
	}
	switch {
	case strings.HasPrefix(s, "сегодня"), strings.HasPrefix(s, "только что"):
		return 0, nil
	case strings.HasPrefix(s, "вчера"):
		return 1, nil
	case strings.HasPrefix(s, "позавчера"):
		return 2, nil
	}

	fields := strings.Fields(s)
	if n, err := strconv.ParseFloat(strings.Replace(fields[0], ",", ".", 1), 64); err == nil && len(fields) > 1 {
		unit := fields[1]
		switch {
		case strings.HasPrefix(unit, "секунд"):
			return n / 86400, nil
		case strings.HasPrefix(unit, "минут"):
			return n / 1440, nil
		case strings.HasPrefix(unit, "час"):
			return n / 24, nil
		case strings.HasPrefix(unit, "дн"), strings.HasPrefix(unit, "день"):
			return n, nil
		case strings.HasPrefix(unit, "недел"):
			return n * 7, nil
		case strings.HasPrefix(unit, "месяц"):
			return n * 30, nil
		case strings.HasPrefix(unit, "лет"), strings.HasPrefix(unit, "год"):
			return n * 365, nil
		}
	}

	// absolute date
	if t, err := time.ParseInLocation("02.01.2006", fields[0], time.Local); err == nil {
		return time.Since(t).Hours() / 24, nil
	}
	return 0, fmt.Errorf("unparseable age %q", s)
}
