package schema

// TestRegistry builds the ads-style reporting schema shared by tests across
// packages. Panics on a build error since the fixture is static.
func TestRegistry() *Registry {
	b := NewBuilder()

	b.Enum("CampaignStatus", map[int64]string{
		0: "UNSPECIFIED", 1: "UNKNOWN", 2: "ENABLED", 3: "PAUSED", 4: "REMOVED",
	})
	b.Enum("Device", map[int64]string{
		0: "UNSPECIFIED", 1: "UNKNOWN", 2: "MOBILE", 3: "TABLET", 4: "DESKTOP",
	})
	b.Enum("AdType", map[int64]string{
		0: "UNSPECIFIED", 1: "UNKNOWN", 2: "TEXT_AD", 3: "RESPONSIVE_SEARCH_AD",
	})

	b.Struct("NetworkSettings",
		F("target_search_network", TypeBool),
		F("target_content_network", TypeBool),
	)
	b.Struct("FrequencyCap",
		F("cap", TypeInt32),
		F("level", TypeString),
	)
	b.Struct("Campaign",
		F("resource_name", TypeString),
		F("id", TypeInt64),
		F("name", TypeString),
		F("status", "CampaignStatus"),
		F("network_settings", "NetworkSettings"),
		FR("labels", TypeString),
		FR("frequency_caps", "FrequencyCap"),
	)
	b.Struct("TextAdInfo",
		F("headline", TypeString),
		F("description", TypeString),
	)
	b.Struct("Ad",
		F("id", TypeInt64),
		F("type", "AdType"),
		F("text_ad", "TextAdInfo"),
		FR("final_urls", TypeString),
	)
	b.Struct("AdGroupAd",
		F("resource_name", TypeString),
		F("ad", "Ad"),
	)
	b.Struct("CampaignAudienceView",
		F("resource_name", TypeString),
	)
	b.Struct("Metrics",
		F("clicks", TypeInt64),
		F("impressions", TypeInt64),
		F("cost_micros", TypeInt64),
		F("ctr", TypeFloat64),
	)
	b.Struct("Segments",
		F("date", TypeDate),
		F("device", "Device"),
	)
	b.Struct("Customer",
		F("id", TypeInt64),
		F("descriptive_name", TypeString),
	)

	b.Resource("campaign",
		F("campaign", "Campaign"),
		F("metrics", "Metrics"),
		F("segments", "Segments"),
	)
	b.Resource("ad_group_ad",
		F("ad_group_ad", "AdGroupAd"),
		F("campaign", "Campaign"),
		F("metrics", "Metrics"),
	)
	b.Resource("campaign_audience_view",
		F("campaign_audience_view", "CampaignAudienceView"),
		F("campaign", "Campaign"),
		F("metrics", "Metrics"),
	)
	b.Resource("customer",
		F("customer", "Customer"),
	)

	reg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return reg
}
