package locale

// catalog は対応言語ごとの翻訳マッピング。
// 既定言語（en）には全キーが存在し、他言語に無いキーはenへフォールバックする。
var catalog = map[string]map[string]string{
	"en": {
		"appTitle":               "CropAI",
		"login":                  "Login",
		"logout":                 "Logout",
		"email":                  "Email",
		"password":               "Password",
		"selectRole":             "Select Your Role",
		"farmer":                 "Farmer",
		"servicePartner":         "Service Partner",
		"customer":               "Customer",
		"verifyIdentity":         "Verify Your Identity",
		"mfaInstructions":        "Enter the code from your {method} to continue",
		"enterCode":              "Enter verification code",
		"codeRequired":           "A 6-digit code is required",
		"verify":                 "Verify",
		"verifying":              "Verifying...",
		"useBackupCode":          "Use a backup code instead",
		"useCode":                "Use verification code",
		"enterBackupCode":        "Enter backup code",
		"backToLogin":            "Back to login",
		"attemptsRemaining":      "attempts remaining",
		"codeExpired":            "The verification code has expired. Please log in again.",
		"invalidCode":            "Invalid verification code",
		"tooManyAttempts":        "Too many attempts. Please log in again later.",
		"verificationFailed":     "Verification failed. Please try again.",
		"mfaVerificationSuccess": "Identity verified. Redirecting...",
		"loginSuccess":           "Logged in successfully",
		"registrationSuccess":    "Account created successfully",
		"passwordResetRequested": "If the account exists, reset instructions have been sent",
		"networkError":           "Connection problem. Please try again.",
	},
	"hi": {
		"appTitle":               "CropAI",
		"login":                  "लॉगिन",
		"logout":                 "लॉग आउट",
		"email":                  "ईमेल",
		"password":               "पासवर्ड",
		"selectRole":             "अपनी भूमिका चुनें",
		"farmer":                 "किसान",
		"servicePartner":         "सेवा भागीदार",
		"customer":               "ग्राहक",
		"verifyIdentity":         "अपनी पहचान सत्यापित करें",
		"mfaInstructions":        "जारी रखने के लिए अपने {method} से कोड दर्ज करें",
		"enterCode":              "सत्यापन कोड दर्ज करें",
		"codeRequired":           "6 अंकों का कोड आवश्यक है",
		"verify":                 "सत्यापित करें",
		"verifying":              "सत्यापित हो रहा है...",
		"useBackupCode":          "बैकअप कोड का उपयोग करें",
		"useCode":                "सत्यापन कोड का उपयोग करें",
		"enterBackupCode":        "बैकअप कोड दर्ज करें",
		"backToLogin":            "लॉगिन पर वापस जाएं",
		"attemptsRemaining":      "प्रयास शेष",
		"codeExpired":            "सत्यापन कोड की समय सीमा समाप्त हो गई है। कृपया फिर से लॉगिन करें।",
		"invalidCode":            "अमान्य सत्यापन कोड",
		"tooManyAttempts":        "बहुत अधिक प्रयास। कृपया बाद में फिर से लॉगिन करें।",
		"verificationFailed":     "सत्यापन विफल। कृपया पुनः प्रयास करें।",
		"mfaVerificationSuccess": "पहचान सत्यापित। पुनर्निर्देशित किया जा रहा है...",
		"loginSuccess":           "सफलतापूर्वक लॉगिन किया गया",
		"registrationSuccess":    "खाता सफलतापूर्वक बनाया गया",
		"networkError":           "कनेक्शन में समस्या। कृपया पुनः प्रयास करें।",
	},
}

// SupportedLanguages は対応言語コードの一覧を返す。
func SupportedLanguages() []string {
	return []string{"en", "hi"}
}
