package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	EmailService *EmailService
	ModelService *ModelService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	emailService := InitEmailService(channel)
	if emailService == nil {
		panic("Failed to initialize Email service")
	}

	modelService := InitModelService(channel)
	if modelService == nil {
		panic("Failed to initialize Model produce service")
	}

	produceInstance = &Produce{
		EmailService: emailService,
		ModelService: modelService,
	}

	return produceInstance
}

func GetProduce() *Produce {
	if produceInstance == nil {
		panic("Produce not initialized. Call InitProduce() first.")
	}
	return produceInstance
}
