package client

// FTP reply codes, RFC 959/2228/2428.
const (
	StatusFileStatusOK = 150

	StatusOK                 = 200
	StatusNotImplemented     = 202
	StatusSystemStatus       = 211
	StatusFileStatus         = 213
	StatusSystemType         = 215
	StatusServiceReady       = 220
	StatusClosingControlConn = 221
	StatusClosingDataConn    = 226
	StatusEnteringPASV       = 227
	StatusEnteringEPSV       = 229
	StatusUserLoggedIn       = 230
	StatusSecurityOK         = 234
	StatusFileOK             = 250
	StatusPathCreated        = 257

	StatusUserOK            = 331
	StatusFileActionPending = 350

	StatusServiceNotAvailable      = 421
	StatusCannotOpenDataConnection = 425
	StatusTransferAborted          = 426
	StatusFileActionNotTaken       = 450
	StatusActionAborted            = 451

	StatusSyntaxErrorNotRecognised = 500
	StatusSyntaxErrorParameters    = 501
	StatusCommandNotImplemented    = 502
	StatusBadCommandSequence       = 503
	StatusNotImplementedParameter  = 504
	StatusExtendedPortFailure      = 522
	StatusNotLoggedIn              = 530
	StatusProtLevelDenied          = 536
	StatusActionNotTaken           = 550
	StatusFileTooBig               = 552
)
