package models

// Technician is a salon technician and the chat they receive alerts in.
type Technician struct {
	Name            string `json:"name" yaml:"name"`
	NotifyChannelID string `json:"-" yaml:"notify_channel_id"`
}

// Service is one row of the price list.
type Service struct {
	MainName string `json:"main" yaml:"main"`
	SubName  string `json:"sub" yaml:"sub"`
	Price    int64  `json:"price" yaml:"price"`
}

// ServiceCatalog is the projection served to the booking mini-app.
type ServiceCatalog struct {
	MainServices []string         `json:"mainServices"`
	SubServices  []string         `json:"subServices"`
	Prices       map[string]int64 `json:"prices"`
}

// PriceKey is the "main-sub" key used by the price table.
func PriceKey(main, sub string) string {
	return main + "-" + sub
}

// BuildServiceCatalog collects distinct names in first-seen order and the price table.
func BuildServiceCatalog(services []Service) ServiceCatalog {
	catalog := ServiceCatalog{
		MainServices: []string{},
		SubServices:  []string{},
		Prices:       make(map[string]int64, len(services)),
	}
	seenMain := make(map[string]bool)
	seenSub := make(map[string]bool)

	for _, svc := range services {
		if svc.MainName != "" && !seenMain[svc.MainName] {
			seenMain[svc.MainName] = true
			catalog.MainServices = append(catalog.MainServices, svc.MainName)
		}
		if svc.SubName != "" && !seenSub[svc.SubName] {
			seenSub[svc.SubName] = true
			catalog.SubServices = append(catalog.SubServices, svc.SubName)
		}
		catalog.Prices[PriceKey(svc.MainName, svc.SubName)] = svc.Price
	}
	return catalog
}

// Price looks up the server-side price of a main/sub combination.
func (c ServiceCatalog) Price(main, sub string) (int64, bool) {
	price, ok := c.Prices[PriceKey(main, sub)]
	return price, ok
}
