package types

import "time"

// User is the owner of listings. Only the fields the exchange core needs are kept here;
// credentials and profile management live with the identity provider.
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	UUID               string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Email              string    `gorm:"uniqueIndex;not null" json:"-"`
	Name               string    `json:"name"`
	CountryOfOrigin    string    `gorm:"not null" json:"country_of_origin"`
	CountryOfResidence string    `gorm:"not null" json:"-"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}
