package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	otpLength = 6
	otpTTL    = 10 * time.Minute
)

// generateOTP 生成定长数字验证码（密码学随机源，与账户数据无关）。
func generateOTP() (string, error) {
	buf := make([]byte, otpLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	for i := range buf {
		buf[i] = '0' + (buf[i] % 10)
	}
	return string(buf), nil
}

// hashOTP 计算验证码的 SHA-256 摘要（hex）。入库的是摘要，明文只走邮件通道。
func hashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// otpMatches 以常数时间比较提交的验证码与存储的摘要。
func otpMatches(storedHash, code string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(hashOTP(code))) == 1
}
