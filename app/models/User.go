package models

import "time"

type User struct {
	tableName struct{} `pg:"users"`

	Id        string    `pg:"id,pk" json:"id"`
	Email     string    `pg:"email,unique" json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `pg:"default:now()" json:"created_at"`
}

type UserDto struct {
	Email string `json:"email"`
	Pass  string `json:"pass"`
}
