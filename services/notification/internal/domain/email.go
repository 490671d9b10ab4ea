package domain

import "errors"

const ConsumerName = "notification"

var ErrNoRecipient = errors.New("email has no recipient")

type Email struct {
	To      string
	Subject string
	HTML    string
}
