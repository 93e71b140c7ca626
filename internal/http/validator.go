package http

import (
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerValidators adds the "pubkey" rule to gin's binding validator.
func registerValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator is not go-playground/validator")
			return
		}
		registerErr = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
			_, err := solana.PublicKeyFromBase58(fl.Field().String())
			return err == nil
		})
	})
	return registerErr
}
