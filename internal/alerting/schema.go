package alerting

// Schema describes the sensor types and operators a device condition can use.
type Schema struct {
	SensorTypes []SensorTypeSchema `json:"sensorTypes"`
	Operators   []OperatorSchema   `json:"operators"`
}

// SensorTypeSchema describes a sensor type for condition builders.
type SensorTypeSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// OperatorSchema describes an operator for condition builders.
type OperatorSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// GetSchema returns the condition schema.
func GetSchema() Schema {
	schema := Schema{
		SensorTypes: make([]SensorTypeSchema, 0, len(AllSensorTypes)),
		Operators: []OperatorSchema{
			{Name: string(OperatorLessOrEqual), Label: "less or equal"},
			{Name: string(OperatorGreaterOrEqual), Label: "greater or equal"},
		},
	}
	for _, st := range AllSensorTypes {
		info := sensorTable[st]
		schema.SensorTypes = append(schema.SensorTypes, SensorTypeSchema{
			Name:  info.name,
			Label: info.label,
			Unit:  info.unit,
		})
	}
	return schema
}

// ValidateDeviceCondition checks a sensor name and condition string before
// they are stored, and returns the condition in canonical form.
func ValidateDeviceCondition(sensorType, condition string) (string, error) {
	if _, ok := ParseSensorType(sensorType); !ok {
		return "", errUnknownSensorType(sensorType)
	}
	parsed, err := ParseCondition(condition)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
