package models

import "strings"

// MenuItem is one row of the day's menu sheet. Identity is
// (day, dish text) with the date normalized and the dish compared
// case/whitespace-insensitively. Quantity is mutated only by the ledger.
type MenuItem struct {
	Day      string `json:"day"`
	Dish     string `json:"dish"`
	PhotoURL string `json:"photo_url,omitempty"`
	Quantity int    `json:"quantity"`
}

// DishComposition is the structured view of a multi-line dish text.
type DishComposition struct {
	Soup  string `json:"soup,omitempty"`
	Hot   string `json:"hot,omitempty"`
	Salad string `json:"salad,omitempty"`
	Drink string `json:"drink,omitempty"`
}

// Component keys used by tariffs
const (
	ComponentSoup  = "soup"
	ComponentHot   = "hot"
	ComponentSalad = "salad"
	ComponentDrink = "drink"
)

// ParseComposition splits a dish cell into its components. The kitchen
// writes one component per line with a labelled prefix; a line without a
// known label counts as the hot course.
func ParseComposition(dish string) DishComposition {
	var c DishComposition
	for _, line := range strings.Split(dish, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "суп:"):
			c.Soup = strings.TrimSpace(line[len("суп:"):])
		case strings.HasPrefix(lower, "горячее:"):
			c.Hot = strings.TrimSpace(line[len("горячее:"):])
		case strings.HasPrefix(lower, "салат:"):
			c.Salad = strings.TrimSpace(line[len("салат:"):])
		case strings.HasPrefix(lower, "напиток:"):
			c.Drink = strings.TrimSpace(line[len("напиток:"):])
		default:
			if c.Hot == "" {
				c.Hot = line
			}
		}
	}
	return c
}

// Component returns the named component text, empty if absent.
func (c DishComposition) Component(key string) string {
	switch key {
	case ComponentSoup:
		return c.Soup
	case ComponentHot:
		return c.Hot
	case ComponentSalad:
		return c.Salad
	case ComponentDrink:
		return c.Drink
	}
	return ""
}

// Tariff is a named bundle of menu components with a payment label.
type Tariff struct {
	Code         string   `json:"code"`
	Title        string   `json:"title"`
	Components   []string `json:"components"`
	PaymentLabel string   `json:"payment_label"`
}

// Tariffs offered for every menu item, in display order.
var Tariffs = []Tariff{
	{
		Code:         "full",
		Title:        "Полный обед",
		Components:   []string{ComponentSoup, ComponentHot, ComponentSalad, ComponentDrink},
		PaymentLabel: "Оплата при получении",
	},
	{
		Code:         "standard",
		Title:        "Суп + Горячее",
		Components:   []string{ComponentSoup, ComponentHot},
		PaymentLabel: "Оплата при получении",
	},
	{
		Code:         "light",
		Title:        "Горячее + Салат",
		Components:   []string{ComponentHot, ComponentSalad},
		PaymentLabel: "Оплата при получении",
	},
}

// TariffByCode looks up a tariff by its callback code.
func TariffByCode(code string) (Tariff, bool) {
	for _, t := range Tariffs {
		if t.Code == code {
			return t, true
		}
	}
	return Tariff{}, false
}

// Describe renders the tariff's slice of the composition, one component
// per line. Components the kitchen did not fill in are skipped.
func (t Tariff) Describe(c DishComposition) string {
	var lines []string
	for _, key := range t.Components {
		if v := c.Component(key); v != "" {
			lines = append(lines, v)
		}
	}
	return strings.Join(lines, "\n")
}
