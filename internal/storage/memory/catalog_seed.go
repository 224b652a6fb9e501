package memory

import "github.com/vladislavdragonenkov/meenava/internal/domain"

func rupees(r int64) int64 { return r * 100 }

// SeedProducts возвращает стартовый ассортимент витрины.
func SeedProducts() []domain.Product {
	return []domain.Product{
		{
			ID:          "1",
			Name:        "Red Snapper",
			NameTamil:   "சங்கரா மீன்",
			Description: "Fresh Red Snapper caught daily from the pristine waters of Rameswaram. Perfect for frying or curry.",
			Category:    domain.CategoryFreshFish,
			Image:       "/assets/products/fresh-snapper.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "250g", PriceMinor: rupees(199)},
				{Weight: "500g", PriceMinor: rupees(379), OriginalPriceMinor: rupees(398)},
				{Weight: "1kg", PriceMinor: rupees(699), OriginalPriceMinor: rupees(798)},
			},
			InStock:   true,
			IsFresh:   true,
			IsPopular: true,
			Rating:    4.8,
			Reviews:   124,
		},
		{
			ID:          "2",
			Name:        "Tiger Prawns",
			NameTamil:   "கருவாடு இறால்",
			Description: "Large, succulent tiger prawns. Excellent for grilling, curries, or biryani. Cleaned and deveined on request.",
			Category:    domain.CategorySeafoodSpecials,
			Image:       "/assets/products/tiger-prawns.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "250g", PriceMinor: rupees(349)},
				{Weight: "500g", PriceMinor: rupees(649), OriginalPriceMinor: rupees(698)},
				{Weight: "1kg", PriceMinor: rupees(1199), OriginalPriceMinor: rupees(1396)},
			},
			InStock:   true,
			IsFresh:   true,
			IsPopular: true,
			Rating:    4.9,
			Reviews:   89,
		},
		{
			ID:          "3",
			Name:        "Dry Anchovies",
			NameTamil:   "நெத்திலி கருவாடு",
			Description: "Traditional sun-dried anchovies from Rameswaram. Rich in flavor, perfect for chutneys and fry dishes.",
			Category:    domain.CategoryDryFish,
			Image:       "/assets/products/dry-fish.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "100g", PriceMinor: rupees(129)},
				{Weight: "250g", PriceMinor: rupees(299)},
				{Weight: "500g", PriceMinor: rupees(549), OriginalPriceMinor: rupees(598)},
			},
			InStock: true,
			Rating:  4.7,
			Reviews: 156,
		},
		{
			ID:          "4",
			Name:        "Blue Swimming Crab",
			NameTamil:   "நண்டு",
			Description: "Fresh blue crabs, perfect for crab curry or pepper crab. Sweet, tender meat that melts in your mouth.",
			Category:    domain.CategorySeafoodSpecials,
			Image:       "/assets/products/blue-crab.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "500g", PriceMinor: rupees(449)},
				{Weight: "1kg", PriceMinor: rupees(849), OriginalPriceMinor: rupees(898)},
			},
			InStock: true,
			IsFresh: true,
			Rating:  4.6,
			Reviews: 67,
		},
		{
			ID:          "5",
			Name:        "Silver Pomfret",
			NameTamil:   "வாவல் மீன்",
			Description: "Premium silver pomfret, a delicacy from the Arabian Sea. Best for frying or steaming with mild spices.",
			Category:    domain.CategoryFreshFish,
			Image:       "/assets/products/pomfret.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "250g", PriceMinor: rupees(329)},
				{Weight: "500g", PriceMinor: rupees(599), OriginalPriceMinor: rupees(658)},
				{Weight: "1kg", PriceMinor: rupees(1099), OriginalPriceMinor: rupees(1316)},
			},
			InStock:   true,
			IsFresh:   true,
			IsPopular: true,
			Rating:    4.9,
			Reviews:   203,
		},
		{
			ID:          "6",
			Name:        "Fresh Squid",
			NameTamil:   "கணவாய்",
			Description: "Tender squid rings and tentacles, cleaned and ready to cook. Ideal for grilling, frying, or curry.",
			Category:    domain.CategorySeafoodSpecials,
			Image:       "/assets/products/squid.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "250g", PriceMinor: rupees(229)},
				{Weight: "500g", PriceMinor: rupees(429), OriginalPriceMinor: rupees(458)},
				{Weight: "1kg", PriceMinor: rupees(799), OriginalPriceMinor: rupees(916)},
			},
			InStock: true,
			IsFresh: true,
			Rating:  4.5,
			Reviews: 78,
		},
		{
			ID:          "7",
			Name:        "King Fish (Seer Fish)",
			NameTamil:   "வஞ்சிரம்",
			Description: "Premium king fish steaks, the king of Indian seafood. Rich, flavorful meat perfect for fry or curry.",
			Category:    domain.CategoryFreshFish,
			Image:       "/assets/products/king-fish.jpg",
			Prices: []domain.VariantPrice{
				{Weight: "250g", PriceMinor: rupees(399)},
				{Weight: "500g", PriceMinor: rupees(749), OriginalPriceMinor: rupees(798)},
				{Weight: "1kg", PriceMinor: rupees(1399), OriginalPriceMinor: rupees(1596)},
			},
			InStock:   true,
			IsFresh:   true,
			IsPopular: true,
			Rating:    4.9,
			Reviews:   312,
		},
	}
}
