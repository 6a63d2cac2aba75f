// Package device maps the raw datapoint protocol to device semantics.
//
// Tuya BLE devices identify themselves with a category and a product id.
// The protocol surface is small and known in advance, so the mapping layer
// is a closed set of category mappers plus a product database carrying the
// per-product datapoint ids (most importantly the fingerbot family, whose
// products disagree about which DP does what).
package device

// Category is a Tuya device category code.
type Category string

// Known device categories.
const (
	// CategoryFingerbot is the actuator family (fingerbots, CubeTouch).
	CategoryFingerbot Category = "szjqr"

	// CategoryLock is the smart lock family.
	CategoryLock Category = "ms"

	// CategoryValve is the thermostatic radiator valve family.
	CategoryValve Category = "wk"

	// CategoryCO2Sensor is the CO2 detector family.
	CategoryCO2Sensor Category = "co2bj"

	// CategorySoilSensor is the soil moisture sensor family.
	CategorySoilSensor Category = "wsdcg"

	// CategoryWaterBottle is the smart water bottle family.
	CategoryWaterBottle Category = "znhsb"

	// CategoryIrrigation is the irrigation computer family.
	CategoryIrrigation Category = "ggq"
)

// DefaultManufacturer is used when a product does not name one.
const DefaultManufacturer = "Tuya"

// FingerbotInfo carries the datapoint ids of one fingerbot product. A zero
// id means the product does not expose that function.
type FingerbotInfo struct {
	Switch           uint8
	Mode             uint8
	UpPosition       uint8
	DownPosition     uint8
	HoldTime         uint8
	ReversePositions uint8
	ManualControl    uint8
	Program          uint8
}

// ProductInfo describes one known product.
type ProductInfo struct {
	Name         string
	Manufacturer string
	Fingerbot    *FingerbotInfo
}

// CategoryInfo groups the products of one category. Info, when set, is the
// fallback for product ids not listed explicitly.
type CategoryInfo struct {
	Products map[string]ProductInfo
	Info     *ProductInfo
}

// fingerbotClassic is the DP map shared by first-generation fingerbots.
var fingerbotClassic = FingerbotInfo{
	Switch:           2,
	Mode:             8,
	UpPosition:       15,
	DownPosition:     9,
	HoldTime:         10,
	ReversePositions: 11,
	Program:          121,
}

// fingerbotPlus additionally exposes manual control (the physical button).
var fingerbotPlus = FingerbotInfo{
	Switch:           2,
	Mode:             8,
	UpPosition:       15,
	DownPosition:     9,
	HoldTime:         10,
	ReversePositions: 11,
	ManualControl:    17,
	Program:          121,
}

// cubetouch is the DP map of the CubeTouch products.
var cubetouch = FingerbotInfo{
	Switch:           1,
	Mode:             2,
	UpPosition:       5,
	DownPosition:     6,
	HoldTime:         3,
	ReversePositions: 4,
}

// database lists the known products per category.
var database = map[Category]CategoryInfo{
	CategoryCO2Sensor: {
		Products: map[string]ProductInfo{
			"59s19z5m": {Name: "CO2 Detector"},
		},
	},
	CategoryLock: {
		Products: map[string]ProductInfo{
			"ludzroix": {Name: "Smart Lock"},
			"isk2p555": {Name: "Smart Lock"},
			"isljqiq1": {Name: "Smart Lock"},
		},
	},
	CategoryFingerbot: {
		Products: func() map[string]ProductInfo {
			m := map[string]ProductInfo{
				"3yqdo5yt": {Name: "CUBETOUCH 1s", Fingerbot: &cubetouch},
				"xhf790if": {Name: "CubeTouch II", Fingerbot: &cubetouch},
			}
			for _, id := range []string{"blliqpsj", "ndvkgsrm", "yiihr7zh", "neq16kgd"} {
				m[id] = ProductInfo{Name: "Fingerbot Plus", Fingerbot: &fingerbotPlus}
			}
			for _, id := range []string{"ltak7e1p", "y6kttvd6", "yrnk7mnn", "nvr2rocq", "bnt7wajf", "rvdceqjh", "5xhbk964"} {
				m[id] = ProductInfo{Name: "Fingerbot", Fingerbot: &fingerbotClassic}
			}
			return m
		}(),
	},
	CategoryValve: {
		Products: map[string]ProductInfo{
			"drlajpqc": {Name: "Thermostatic Radiator Valve"},
			"nhj2j7su": {Name: "Thermostatic Radiator Valve"},
		},
	},
	CategorySoilSensor: {
		Products: map[string]ProductInfo{
			"ojzlzzsw": {Name: "Soil moisture sensor"},
		},
	},
	CategoryWaterBottle: {
		Products: map[string]ProductInfo{
			"cdlandip": {Name: "Smart water bottle"},
		},
	},
	CategoryIrrigation: {
		Products: map[string]ProductInfo{
			"6pahkcau": {Name: "Irrigation computer"},
		},
	},
}

// LookupProduct returns product info for a category and product id. An
// unlisted product id falls back to the category-level info when one exists.
func LookupProduct(category Category, productID string) (ProductInfo, bool) {
	info, ok := database[category]
	if !ok {
		return ProductInfo{}, false
	}
	if p, ok := info.Products[productID]; ok {
		if p.Manufacturer == "" {
			p.Manufacturer = DefaultManufacturer
		}
		return p, true
	}
	if info.Info != nil {
		p := *info.Info
		if p.Manufacturer == "" {
			p.Manufacturer = DefaultManufacturer
		}
		return p, true
	}
	return ProductInfo{}, false
}

// KnownCategory reports whether the category is in the supported set.
func KnownCategory(category Category) bool {
	_, ok := database[category]
	return ok
}
