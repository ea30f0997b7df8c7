package memory

import "errors"

var (
	ErrNumberTaken = errors.New("booking number already taken")
	ErrEmptyRoomID = errors.New("room id is empty")
)
