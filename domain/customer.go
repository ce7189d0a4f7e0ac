package domain

type Customer struct {
	ID        int64  `db:"id" json:"id"`
	Fullname  string `db:"fullname" json:"fullname"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
