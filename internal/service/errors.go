package service

import "errors"

var (
	ErrValidation       = errors.New("validation")         // 400
	ErrNotFound         = errors.New("not found")          // 404
	ErrItemNotFound     = errors.New("item not found")     // 409
	ErrOutOfStock       = errors.New("out of stock")       // 409
	ErrNotEnoughBalance = errors.New("not enough balance") // 409
	ErrInvalidStatus    = errors.New("invalid status")     // 400
	ErrStorage          = errors.New("storage failure")    // 502
)
