package mealpass

import "github.com/mealvine/mealpass/id"

// ID is the primary identifier type for all MealPass entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
