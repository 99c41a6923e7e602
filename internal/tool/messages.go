package tool

// Replies shown to the lead.
const (
	MsgAskNameAgain     = "Não entendi o nome. Pode repetir?"
	MsgAskPainAgain     = "Pode descrever rapidamente o que você precisa?"
	MsgAskConfirmation  = "Preciso de uma confirmação (sim/não)."
	MsgDeclined         = "Entendi. Se mudar de ideia, me avise!"
	MsgNoAvailability   = "Desculpe, no momento não há horários disponíveis. Posso tentar novamente mais tarde?"
	MsgInvalidChoice    = "Escolha inválida. Responda com o número do horário (ex: 1)."
	MsgUnparseableTime  = "Não consegui entender a data/hora. Use o formato ISO ou escolha o número do slot."
	MsgAskTimeChoice    = "Por favor, escolha um dos horários respondendo com o número (ex: 1) ou envie o horário em ISO."
	MsgSlotsLost        = "Não localizei os horários que ofereci. Seguem novas opções."
	MsgInvalidEmail     = "Esse email não parece válido. Pode verificar e enviar novamente?"
	MsgInternalError    = "Ocorreu um erro interno. Pode tentar novamente?"
	MsgToolNotAvailable = "Desculpe, não consegui registrar essa informação agora. Pode repetir?"
)
