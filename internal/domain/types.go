package domain

import "time"

type SessionID string

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Timestamp = time.Time

// FacialExpression is the avatar face tag attached to a reply segment.
type FacialExpression string

const (
	ExpressionSmile     FacialExpression = "smile"
	ExpressionSad       FacialExpression = "sad"
	ExpressionAngry     FacialExpression = "angry"
	ExpressionSurprised FacialExpression = "surprised"
	ExpressionFunnyFace FacialExpression = "funnyFace"
	ExpressionDefault   FacialExpression = "default"
)

// FacialExpressions lists the allowed tags in the order they are shown to the model.
var FacialExpressions = []FacialExpression{
	ExpressionSmile,
	ExpressionSad,
	ExpressionAngry,
	ExpressionSurprised,
	ExpressionFunnyFace,
	ExpressionDefault,
}

// Valid reports whether e is one of the allowed tags.
func (e FacialExpression) Valid() bool {
	for _, v := range FacialExpressions {
		if v == e {
			return true
		}
	}
	return false
}

// Animation is the avatar body animation attached to a reply segment.
type Animation string

const (
	AnimationTalking0  Animation = "Talking_0"
	AnimationTalking1  Animation = "Talking_1"
	AnimationTalking2  Animation = "Talking_2"
	AnimationCrying    Animation = "Crying"
	AnimationLaughing  Animation = "Laughing"
	AnimationRumba     Animation = "Rumba"
	AnimationIdle      Animation = "Idle"
	AnimationTerrified Animation = "Terrified"
	AnimationAngry     Animation = "Angry"
)

var Animations = []Animation{
	AnimationTalking0,
	AnimationTalking1,
	AnimationTalking2,
	AnimationCrying,
	AnimationLaughing,
	AnimationRumba,
	AnimationIdle,
	AnimationTerrified,
	AnimationAngry,
}

func (a Animation) Valid() bool {
	for _, v := range Animations {
		if v == a {
			return true
		}
	}
	return false
}
