package dtk

import "github.com/shopspring/decimal"

// PrivacyTier is the coarse sensitivity class of a data type.
type PrivacyTier string

const (
	PrivacyLow    PrivacyTier = "low"
	PrivacyMedium PrivacyTier = "medium"
	PrivacyHigh   PrivacyTier = "high"
)

// Data type ids.
const (
	DataTypeLocation  = "location"
	DataTypePurchases = "purchases"
	DataTypeHealth    = "health"
	DataTypeSocial    = "social"
	DataTypeBrowsing  = "browsing"
)

// DataType is a catalog entry describing a category of personal data that
// can be tokenized. BasePrice is in SOL.
type DataType struct {
	ID          string
	Name        string
	Description string
	Icon        string
	BasePrice   decimal.Decimal
	Privacy     PrivacyTier
	Examples    []string
}

var catalog = []DataType{
	{
		ID:          DataTypeLocation,
		Name:        "Geolocation",
		Description: "Your movements and visited places over a period",
		Icon:        "map",
		BasePrice:   decimal.RequireFromString("0.1"),
		Privacy:     PrivacyMedium,
		Examples:    []string{"Trip routes", "Frequently visited places", "Time spent at locations"},
	},
	{
		ID:          DataTypePurchases,
		Name:        "Purchase history",
		Description: "Transactions and shopping preferences",
		Icon:        "cart",
		BasePrice:   decimal.RequireFromString("0.05"),
		Privacy:     PrivacyHigh,
		Examples:    []string{"Product categories", "Average receipt", "Purchase frequency"},
	},
	{
		ID:          DataTypeHealth,
		Name:        "Fitness data",
		Description: "Activity, heart rate, sleep, workouts",
		Icon:        "watch",
		BasePrice:   decimal.RequireFromString("0.08"),
		Privacy:     PrivacyMedium,
		Examples:    []string{"Daily steps", "Sleep quality", "Activity type"},
	},
	{
		ID:          DataTypeSocial,
		Name:        "Social activity",
		Description: "Interests and social network preferences",
		Icon:        "phone",
		BasePrice:   decimal.RequireFromString("0.03"),
		Privacy:     PrivacyLow,
		Examples:    []string{"Topics of interest", "Activity hours", "Reactions to content"},
	},
	{
		ID:          DataTypeBrowsing,
		Name:        "Web activity",
		Description: "Visited sites and search queries",
		Icon:        "search",
		BasePrice:   decimal.RequireFromString("0.02"),
		Privacy:     PrivacyMedium,
		Examples:    []string{"Site categories", "Browsing time", "Search trends"},
	},
}

// Catalog returns the data type templates in declaration order.
func Catalog() []DataType {
	out := make([]DataType, len(catalog))
	for i, dt := range catalog {
		dt.Examples = append([]string(nil), dt.Examples...)
		out[i] = dt
	}
	return out
}

// LookupDataType returns the template with the given id.
func LookupDataType(id string) (DataType, bool) {
	for _, dt := range catalog {
		if dt.ID == id {
			dt.Examples = append([]string(nil), dt.Examples...)
			return dt, true
		}
	}
	return DataType{}, false
}

// DefaultPrice is the price a token of this type gets when the owner does
// not set one.
func (dt DataType) DefaultPrice() decimal.Decimal {
	return DefaultPrice(dt.BasePrice, dt.Privacy)
}

// SampleData returns the mock preview shown to buyers before they purchase
// access to a data type. Unknown ids yield an empty map.
func SampleData(id string) map[string]any {
	switch id {
	case DataTypeLocation:
		return map[string]any{
			"totalLocations": 47,
			"topAreas":       []string{"City center", "Shopping malls", "Parks"},
			"avgDistance":    "12.3 km/day",
			"peakHours":      "18:00-20:00",
		}
	case DataTypePurchases:
		return map[string]any{
			"categories":    []string{"Groceries", "Clothing", "Electronics"},
			"avgCheck":      2847,
			"frequency":     "3-4 times a week",
			"preferredTime": "Weekends",
		}
	case DataTypeHealth:
		return map[string]any{
			"avgSteps":     8542,
			"sleepQuality": "7.2/10",
			"activeHours":  "2.5 h/day",
			"heartRate":    "72 bpm",
		}
	case DataTypeSocial:
		return map[string]any{
			"interests":  []string{"Technology", "Sports", "Travel"},
			"engagement": "High",
			"activeTime": "Evening",
			"platform":   "Instagram, YouTube",
		}
	case DataTypeBrowsing:
		return map[string]any{
			"topSites":   []string{"YouTube", "GitHub", "Medium"},
			"categories": []string{"IT", "Education", "News"},
			"avgSession": "15 min",
			"devices":    "Desktop (70%), Mobile (30%)",
		}
	default:
		return map[string]any{}
	}
}
