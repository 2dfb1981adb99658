package enums

import "strings"

// AdTag is a member of the controlled listing taxonomy.
type AdTag string

const (
	AdTagElectronics AdTag = "electronics"
	AdTagFashion     AdTag = "fashion"
	AdTagHome        AdTag = "home"
	AdTagJobs        AdTag = "jobs"
	AdTagServices    AdTag = "services"
	AdTagRealEstate  AdTag = "real-estate"
	AdTagVehicles    AdTag = "vehicles"
	AdTagEducation   AdTag = "education"
	AdTagHealth      AdTag = "health"
	AdTagBeauty      AdTag = "beauty"
	AdTagFood        AdTag = "food"
	AdTagTravel      AdTag = "travel"
	AdTagEvents      AdTag = "events"
	AdTagSports      AdTag = "sports"
	AdTagGaming      AdTag = "gaming"
	AdTagCrypto      AdTag = "crypto"
	AdTagFinance     AdTag = "finance"
	AdTagSoftware    AdTag = "software"
	AdTagMusic       AdTag = "music"
	AdTagArt         AdTag = "art"
	AdTagPets        AdTag = "pets"
	AdTagKids        AdTag = "kids"
	AdTagBooks       AdTag = "books"
	AdTagCollectible AdTag = "collectibles"
	AdTagTools       AdTag = "tools"
	AdTagCommunity   AdTag = "community"
	AdTagLocal       AdTag = "local"
	AdTagOnline      AdTag = "online"
	AdTagBusiness    AdTag = "business"
	AdTagDeals       AdTag = "deals"
)

var adTagVocabulary = []AdTag{
	AdTagElectronics,
	AdTagFashion,
	AdTagHome,
	AdTagJobs,
	AdTagServices,
	AdTagRealEstate,
	AdTagVehicles,
	AdTagEducation,
	AdTagHealth,
	AdTagBeauty,
	AdTagFood,
	AdTagTravel,
	AdTagEvents,
	AdTagSports,
	AdTagGaming,
	AdTagCrypto,
	AdTagFinance,
	AdTagSoftware,
	AdTagMusic,
	AdTagArt,
	AdTagPets,
	AdTagKids,
	AdTagBooks,
	AdTagCollectible,
	AdTagTools,
	AdTagCommunity,
	AdTagLocal,
	AdTagOnline,
	AdTagBusiness,
	AdTagDeals,
}

// String implements fmt.Stringer.
func (t AdTag) String() string {
	return string(t)
}

// IsValid reports whether the tag belongs to the vocabulary.
func (t AdTag) IsValid() bool {
	for _, candidate := range adTagVocabulary {
		if candidate == t {
			return true
		}
	}
	return false
}

// NormalizeAdTag lower-cases and trims raw model output and reports vocabulary membership.
func NormalizeAdTag(value string) (AdTag, bool) {
	tag := AdTag(strings.ToLower(strings.TrimSpace(value)))
	return tag, tag.IsValid()
}

// AdTagVocabulary returns a copy of the controlled vocabulary in display order.
func AdTagVocabulary() []AdTag {
	out := make([]AdTag, len(adTagVocabulary))
	copy(out, adTagVocabulary)
	return out
}
