package models

// All lists every persisted entity in creation order
func All() []any {
	return []any{
		&User{},
		&Contact{},
		&Campaign{},
		&CampaignContact{},
		&CampaignDelivery{},
		&MediaFile{},
		&ImportedFile{},
		&BotActivity{},
		&AuditLog{},
	}
}
