package rooms

import (
	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/profanity"
	"github.com/hilthontt/impostor/internal/infrastructure/validate"
)

const (
	maxUserNameLength = 32
	maxRoomNameLength = 64
)

type validators struct {
	ownerName validate.Validator
	userName  validate.Validator
	roomName  validate.Validator
	roomCode  validate.Validator
	ownerID   validate.Validator
}

func newValidators(filter *profanity.ProfanityFilter) validators {
	clean := validate.Not(filter.ContainsProfanity, "must not contain profanity")

	return validators{
		ownerName: validate.Field("owner_name",
			validate.Required(), validate.MaxLength(maxUserNameLength), validate.Printable(), clean),
		userName: validate.Field("user_name",
			validate.Required(), validate.MaxLength(maxUserNameLength), validate.Printable(), clean),
		roomName: validate.Field("room_name",
			validate.Required(), validate.MaxLength(maxRoomNameLength), validate.Printable(), clean),
		roomCode: validate.Field("room_code",
			validate.Required(), validate.Length(domain.RoomCodeLength), validate.Printable()),
		ownerID: validate.Field("owner_id", validate.Required()),
	}
}
