package tokens

func SignRefresh(claims RefreshClaims, secret []byte) (string, error) {
	return sign(claims, secret)
}

func RefreshClaimsFromToken(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := parse(tokenStr, &claims, refreshSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}
