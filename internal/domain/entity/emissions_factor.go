package entity

// EmissionsFactor is a row of vehicle_emissions.
type EmissionsFactor struct {
	VehicleType     string  `gorm:"column:vehicle_type;primaryKey"`
	CO2GramsPerMile float64 `gorm:"column:co2_grams_per_mile"`
}

// TableName specifies the table name for EmissionsFactor.
func (EmissionsFactor) TableName() string {
	return "vehicle_emissions"
}
