package domain

// Product is a catalogue entry offered by the ordering assistant.
type Product struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             string `json:"price,omitempty"`
	AvailableQuantity string `json:"available_quantity,omitempty"`
	Quantity          *int   `json:"quantity,omitempty"`
	QuantityOrWeight  string `json:"quantity_or_weight"`
}

// AssistantResponse is the structured part of a reply. Intent and NextStep drive
// what the caller renders next; they are not interpreted here.
type AssistantResponse struct {
	Intent   string    `json:"intent"`
	Message  string    `json:"message,omitempty"`
	Products []Product `json:"products,omitempty"`
	Product  *Product  `json:"product,omitempty"`
	Quantity *int      `json:"quantity,omitempty"`
	Total    string    `json:"total,omitempty"`
	NextStep string    `json:"next_step"`
	Address  string    `json:"address,omitempty"`
}

// ServiceResponse is the decoded body of a POST /order/ reply.
type ServiceResponse struct {
	OrderText string            `json:"order_text"`
	ThreadID  string            `json:"thread_id,omitempty"`
	Assistant AssistantResponse `json:"assistant_response"`
}
